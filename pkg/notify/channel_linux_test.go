//go:build linux

package notify

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/attrshm/pkg/store"
)

type ChannelTestSuite struct {
	suite.Suite
	key Key
}

func (s *ChannelTestSuite) SetupTest() {
	// unique per test so parallel packages never share an endpoint
	s.key = Key{Dev: uint64(os.Getpid()), Ino: uint64(time.Now().UnixNano())}
}

func (s *ChannelTestSuite) TestDeliverWithPeerCredentials() {
	l, err := Listen(s.key, 77)
	s.Require().NoError(err)
	defer l.Close()

	// the payload claims a different sender; the kernel credentials win
	err = Notify(context.Background(), s.key, 77, Event{Sender: 1, Offset: 64}, time.Second)
	s.Require().NoError(err)

	ev, err := l.Receive()
	s.Require().NoError(err)
	s.Equal(uint32(64), ev.Offset)
	s.Equal(store.Identity(os.Getpid()), ev.Sender)
}

func (s *ChannelTestSuite) TestNoListenerIsNotDelivered() {
	err := Notify(context.Background(), s.key, 12345, Event{Offset: 1}, 50*time.Millisecond)
	s.ErrorIs(err, ErrNotDelivered)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Notify(ctx, s.key, 12345, Event{Offset: 1}, time.Second)
	s.ErrorIs(err, ErrNotDelivered)
	s.ErrorIs(err, context.Canceled)
}

func (s *ChannelTestSuite) TestMalformedDatagramsAreDropped() {
	l, err := Listen(s.key, 78)
	s.Require().NoError(err)
	defer l.Close()

	raw, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: l.Endpoint(), Net: "unixgram"})
	s.Require().NoError(err)
	_, err = raw.Write([]byte("SIGUSR2"))
	s.Require().NoError(err)
	s.Require().NoError(raw.Close())

	s.Require().NoError(Notify(context.Background(), s.key, 78, Event{Offset: 8}, time.Second))
	ev, err := l.Receive()
	s.Require().NoError(err)
	s.Equal(uint32(8), ev.Offset)
}

func (s *ChannelTestSuite) TestCloseUnblocksReceive() {
	l, err := Listen(s.key, 79)
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() {
		_, err := l.Receive()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	s.Require().NoError(l.Close())
	s.Require().NoError(l.Close())

	select {
	case err := <-done:
		s.ErrorIs(err, ErrClosed)
	case <-time.After(2 * time.Second):
		s.Fail("Receive did not return after Close")
	}

	// the endpoint is released with the listener
	err = Notify(context.Background(), s.key, 79, Event{Offset: 1}, 50*time.Millisecond)
	s.ErrorIs(err, ErrNotDelivered)
}

func (s *ChannelTestSuite) TestDuplicateEndpointFails() {
	l, err := Listen(s.key, 80)
	s.Require().NoError(err)
	defer l.Close()
	_, err = Listen(s.key, 80)
	s.Error(err)
}

func (s *ChannelTestSuite) TestBroadcastContinuesPastFailures() {
	l1, err := Listen(s.key, 81)
	s.Require().NoError(err)
	defer l1.Close()
	l3, err := Listen(s.key, 83)
	s.Require().NoError(err)
	defer l3.Close()

	b, err := NewBroadcaster(s.key, WithTimeout(100*time.Millisecond), WithWorkers(2))
	s.Require().NoError(err)
	defer b.Close()

	watchers := []store.Watcher{{Slot: 0, ID: 81}, {Slot: 1, ID: 82}, {Slot: 2, ID: 83}}
	out := b.Broadcast(context.Background(), watchers, 100)
	s.Require().Len(out, 3)
	for i, d := range out {
		s.Equal(watchers[i], d.Watcher)
	}
	s.NoError(out[0].Err)
	s.ErrorIs(out[1].Err, ErrNotDelivered)
	s.NoError(out[2].Err)

	for _, l := range []*Listener{l1, l3} {
		ev, err := l.Receive()
		s.Require().NoError(err)
		s.Equal(uint32(100), ev.Offset)
	}
}

func TestChannelTestSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}
