//go:build linux

package notify

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/srediag/attrshm/pkg/store"
)

// Listener receives events for one watcher. Receive must be called from a
// single goroutine; Close may be called from any goroutine.
type Listener struct {
	conn *net.UnixConn
	name string
	log  *zap.Logger

	buf []byte
	oob []byte

	closeOnce sync.Once
	closeErr  error
}

// Listen binds the endpoint of watcher id on record key. It must be bound
// before id is published in the registry so no event is sent to a missing
// endpoint.
func Listen(key Key, id store.Identity, opts ...Option) (*Listener, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	name := Endpoint(key, id)
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: name, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", name, err)
	}
	if err := passCredentials(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("listen %s: %w", name, err)
	}
	o.logger.Debug("listening for notifications", zap.String("endpoint", name))
	return &Listener{
		conn: conn,
		name: name,
		log:  o.logger,
		buf:  make([]byte, 64),
		oob:  make([]byte, unix.CmsgSpace(unix.SizeofUcred)),
	}, nil
}

func passCredentials(conn *net.UnixConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PASSCRED, 1)
	}); err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("SO_PASSCRED: %w", serr)
	}
	return nil
}

// Endpoint returns the name the listener is bound to.
func (l *Listener) Endpoint() string { return l.name }

// Receive blocks until an event arrives or the listener is closed.
// Datagrams that are not events are dropped.
func (l *Listener) Receive() (Event, error) {
	for {
		n, oobn, _, _, err := l.conn.ReadMsgUnix(l.buf, l.oob)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return Event{}, ErrClosed
			}
			return Event{}, fmt.Errorf("receive on %s: %w", l.name, err)
		}
		var ev Event
		if err := ev.UnmarshalBinary(l.buf[:n]); err != nil {
			l.log.Debug("dropping datagram", zap.String("endpoint", l.name), zap.Error(err))
			continue
		}
		if pid, ok := peerPid(l.oob[:oobn]); ok {
			ev.Sender = store.Identity(pid)
		}
		return ev, nil
	}
}

func peerPid(oob []byte) (int32, bool) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0, false
	}
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_CREDENTIALS {
			continue
		}
		cred, err := unix.ParseUnixCredentials(&msgs[i])
		if err != nil {
			return 0, false
		}
		return cred.Pid, true
	}
	return 0, false
}

// Close releases the endpoint and unblocks a pending Receive.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
