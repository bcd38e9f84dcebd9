package shm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

var (
	// ErrOutOfRange is returned when an access would fall outside the mapped region.
	ErrOutOfRange = errors.New("access outside mapped region")
	// ErrUnaligned is returned when an atomic access is not naturally aligned.
	ErrUnaligned = errors.New("unaligned atomic access")
)

func wordAt(mem []byte, off, size int) (unsafe.Pointer, error) {
	if off < 0 || size > len(mem) || off > len(mem)-size {
		return nil, fmt.Errorf("%w: offset %d size %d len %d", ErrOutOfRange, off, size, len(mem))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%uintptr(size) != 0 {
		return nil, fmt.Errorf("%w: offset %d size %d", ErrUnaligned, off, size)
	}
	return p, nil
}

// AtomicLoadInt32 loads an int32 from shared memory atomically.
func AtomicLoadInt32(mem []byte, off int) (int32, error) {
	p, err := wordAt(mem, off, 4)
	if err != nil {
		return 0, err
	}
	return atomic.LoadInt32((*int32)(p)), nil
}

// AtomicStoreInt32 stores an int32 to shared memory atomically.
func AtomicStoreInt32(mem []byte, off int, val int32) error {
	p, err := wordAt(mem, off, 4)
	if err != nil {
		return err
	}
	atomic.StoreInt32((*int32)(p), val)
	return nil
}

// AtomicCompareAndSwapInt32 atomically compares and swaps an int32 in shared memory.
func AtomicCompareAndSwapInt32(mem []byte, off int, old, new int32) (bool, error) {
	p, err := wordAt(mem, off, 4)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapInt32((*int32)(p), old, new), nil
}

// AtomicLoadInt64 loads an int64 from shared memory atomically.
func AtomicLoadInt64(mem []byte, off int) (int64, error) {
	p, err := wordAt(mem, off, 8)
	if err != nil {
		return 0, err
	}
	return atomic.LoadInt64((*int64)(p)), nil
}

// AtomicStoreInt64 stores an int64 to shared memory atomically.
func AtomicStoreInt64(mem []byte, off int, val int64) error {
	p, err := wordAt(mem, off, 8)
	if err != nil {
		return err
	}
	atomic.StoreInt64((*int64)(p), val)
	return nil
}
