package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/srediag/attrshm/internal/shm"
)

// ErrInvalidIdentity is returned when registering a non-positive identity.
var ErrInvalidIdentity = errors.New("invalid watcher identity")

// Identity addresses a subscriber process on this host (its pid). Zero marks
// an empty slot.
type Identity int32

// Watcher is an occupied registry slot.
type Watcher struct {
	Slot int
	ID   Identity
}

// Register claims the first empty slot for id, scanning in index order. Each
// claim is a compare-and-swap from empty, so two processes racing for the
// same slot cannot both get it; the loser moves on to the next slot. When
// every slot is taken, slot 0 is overwritten and the identity it held is
// returned as evicted.
func (s *Store) Register(id Identity) (slot int, evicted Identity, err error) {
	if id <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidIdentity, id)
	}
	if s.mem == nil {
		return 0, 0, ErrClosed
	}
	for i := 0; i < s.layout.NotifyMax; i++ {
		ok, err := shm.AtomicCompareAndSwapInt32(s.mem, s.layout.SlotOffset(i), 0, int32(id))
		if err != nil {
			return 0, 0, err
		}
		if ok {
			s.log.Debug("watcher registered", zap.Int("slot", i), zap.Int32("id", int32(id)))
			return i, 0, nil
		}
	}
	prev, err := s.swapSlot0(id)
	if err != nil {
		return 0, 0, err
	}
	s.log.Warn("watcher registry full, overwrote slot 0",
		zap.Int32("id", int32(id)),
		zap.Int32("evicted", int32(prev)))
	return 0, prev, nil
}

func (s *Store) swapSlot0(id Identity) (Identity, error) {
	off := s.layout.SlotOffset(0)
	for {
		prev, err := shm.AtomicLoadInt32(s.mem, off)
		if err != nil {
			return 0, err
		}
		ok, err := shm.AtomicCompareAndSwapInt32(s.mem, off, prev, int32(id))
		if err != nil {
			return 0, err
		}
		if ok {
			return Identity(prev), nil
		}
	}
}

// Unregister empties slot if it still holds id. A slot that is already empty,
// belongs to another identity or is out of range is left alone and false is
// returned.
func (s *Store) Unregister(slot int, id Identity) bool {
	if s.mem == nil || slot < 0 || slot >= s.layout.NotifyMax || id <= 0 {
		return false
	}
	ok, err := shm.AtomicCompareAndSwapInt32(s.mem, s.layout.SlotOffset(slot), int32(id), 0)
	if err != nil {
		s.log.Error("unregister", zap.Int("slot", slot), zap.Error(err))
		return false
	}
	if ok {
		s.log.Debug("watcher unregistered", zap.Int("slot", slot), zap.Int32("id", int32(id)))
	}
	return ok
}

// Owner returns the identity currently stored in slot.
func (s *Store) Owner(slot int) (Identity, error) {
	if s.mem == nil {
		return 0, ErrClosed
	}
	if slot < 0 || slot >= s.layout.NotifyMax {
		return 0, fmt.Errorf("%w: slot %d", ErrOutOfRange, slot)
	}
	v, err := shm.AtomicLoadInt32(s.mem, s.layout.SlotOffset(slot))
	return Identity(v), err
}

// Slots returns every slot's identity in index order, including empty ones.
func (s *Store) Slots() ([]Identity, error) {
	out := make([]Identity, s.layout.NotifyMax)
	for i := range out {
		id, err := s.Owner(i)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// ActiveIdentities returns the occupied slots in index order.
func (s *Store) ActiveIdentities() ([]Watcher, error) {
	slots, err := s.Slots()
	if err != nil {
		return nil, err
	}
	var out []Watcher
	for i, id := range slots {
		if id != 0 {
			out = append(out, Watcher{Slot: i, ID: id})
		}
	}
	return out, nil
}
