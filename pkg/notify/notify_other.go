//go:build !linux

package notify

import (
	"context"
	"time"

	"github.com/srediag/attrshm/pkg/store"
)

// Listener is not available on this platform.
type Listener struct{}

// Listen is not implemented on this platform.
func Listen(key Key, id store.Identity, opts ...Option) (*Listener, error) {
	return nil, ErrUnsupported
}

// Endpoint returns an empty name.
func (l *Listener) Endpoint() string { return "" }

// Receive always fails with ErrClosed.
func (l *Listener) Receive() (Event, error) { return Event{}, ErrClosed }

// Close is a no-op.
func (l *Listener) Close() error { return nil }

// Notify is not implemented on this platform.
func Notify(ctx context.Context, key Key, target store.Identity, ev Event, timeout time.Duration) error {
	return ErrUnsupported
}
