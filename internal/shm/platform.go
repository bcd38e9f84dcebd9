// Package shm contains platform-specific helpers for mapping the shared record file.
package shm

import "errors"

var (
	// ErrUnsupported is returned on platforms without a MAP_SHARED file mapping.
	ErrUnsupported = errors.New("shared record mapping is not supported on this platform")
	// ErrShortFile means the backing file is smaller than the record. A concurrent
	// creator may still be zero-filling it.
	ErrShortFile = errors.New("backing file shorter than record")
	// ErrSizeMismatch means the backing file is larger than the record.
	ErrSizeMismatch = errors.New("backing file size does not match record")
	// ErrShortWrite is returned when zero-filling a new backing file writes fewer bytes than requested.
	ErrShortWrite = errors.New("short write")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Size int
	// Dev and Ino identify the backing file across processes.
	Dev uint64
	Ino uint64
}

// MapOptions defines options for mapping the backing file.
type MapOptions struct {
	Path string
	Size int
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_other.go).
