//go:build linux

package notify

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/attrshm/pkg/store"
)

// Notify sends ev to watcher target on record key. It gives up after timeout
// if the receiver's queue is full. Any failure wraps ErrNotDelivered.
func Notify(ctx context.Context, key Key, target store.Identity, ev Event, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: id %d: %w", ErrNotDelivered, target, err)
	}
	addr := &net.UnixAddr{Name: Endpoint(key, target), Net: "unixgram"}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return fmt.Errorf("%w: id %d: %w", ErrNotDelivered, target, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: id %d: %w", ErrNotDelivered, target, err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = ev.AppendBinary(buf.B[:0])
	if _, err := conn.Write(buf.B); err != nil {
		return fmt.Errorf("%w: id %d: %w", ErrNotDelivered, target, err)
	}
	return nil
}
