//go:build !linux

package shm

import "context"

// CreateFile is not implemented on this platform.
func CreateFile(path string, size int) error {
	return ErrUnsupported
}

// MapRegion is not implemented on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is not implemented on this platform.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}
