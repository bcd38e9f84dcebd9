// Package notify carries attribute change events from a writer process to
// every registered watcher process on the same host.
//
// Each watcher owns one datagram endpoint named after the record it watches
// and its identity. An event holds only the offset of the changed attribute;
// the receiver reads the value from the shared record itself. Delivery is
// fire-and-forget: a send never waits for the receiver to act on it.
package notify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/srediag/attrshm/pkg/store"
)

const (
	eventMagic   uint16 = 0x5053
	eventVersion uint16 = 1
	eventLen            = 12

	defaultTimeout = 200 * time.Millisecond
	defaultWorkers = 4
)

var (
	// ErrNotDelivered wraps the failure to hand an event to one watcher.
	ErrNotDelivered = errors.New("notification not delivered")
	// ErrClosed is returned by Receive once the listener is closed.
	ErrClosed = errors.New("listener closed")
	// ErrMalformed is returned for datagrams that are not events.
	ErrMalformed = errors.New("malformed event")
	// ErrUnsupported is returned on platforms without abstract unix sockets.
	ErrUnsupported = errors.New("notification channel is not supported on this platform")
)

// Key names the shared record a channel belongs to.
type Key struct {
	Dev uint64
	Ino uint64
}

// KeyOf returns the channel key of an open store.
func KeyOf(s *store.Store) Key {
	dev, ino := s.Inode()
	return Key{Dev: dev, Ino: ino}
}

// Endpoint returns the abstract socket name of watcher id on record key.
func Endpoint(key Key, id store.Identity) string {
	return fmt.Sprintf("@attrshm/%x:%x/%d", key.Dev, key.Ino, id)
}

// Event is one change notification.
type Event struct {
	// Sender is the identity of the writing process. On receive it is taken
	// from the kernel's peer credentials when available.
	Sender store.Identity
	Offset uint32
}

// AppendBinary appends the wire form of e to b.
func (e Event) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, eventMagic)
	b = binary.LittleEndian.AppendUint16(b, eventVersion)
	b = binary.LittleEndian.AppendUint32(b, e.Offset)
	return binary.LittleEndian.AppendUint32(b, uint32(e.Sender))
}

// MarshalBinary returns the wire form of e.
func (e Event) MarshalBinary() ([]byte, error) {
	return e.AppendBinary(make([]byte, 0, eventLen)), nil
}

// UnmarshalBinary decodes one datagram.
func (e *Event) UnmarshalBinary(b []byte) error {
	if len(b) != eventLen {
		return fmt.Errorf("%w: length %d", ErrMalformed, len(b))
	}
	if m := binary.LittleEndian.Uint16(b[0:]); m != eventMagic {
		return fmt.Errorf("%w: magic %#x", ErrMalformed, m)
	}
	if v := binary.LittleEndian.Uint16(b[2:]); v != eventVersion {
		return fmt.Errorf("%w: version %d", ErrMalformed, v)
	}
	e.Offset = binary.LittleEndian.Uint32(b[4:])
	e.Sender = store.Identity(binary.LittleEndian.Uint32(b[8:]))
	return nil
}

// Option configures listeners and broadcasters.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	timeout time.Duration
	workers int
	telemetry
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		timeout:   defaultTimeout,
		workers:   defaultWorkers,
		telemetry: defaultTelemetry(),
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeout bounds how long one send may block on a full receiver.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithWorkers sets how many sends a broadcast runs in parallel.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}
