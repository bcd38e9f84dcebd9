//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const fileMode = 0o644

// writeFd is the write used to zero-fill a new file.
var writeFd = unix.Write

// CreateFile creates path and zero-fills it to exactly size bytes. It fails
// with an error wrapping unix.EEXIST if the file is already there, so only one
// of several racing creators initializes the record. A file that could not be
// fully zero-filled is removed again.
func CreateFile(path string, size int) (err error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, fileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		_ = unix.Close(fd)
		if err != nil {
			if uerr := unix.Unlink(path); uerr != nil {
				err = errors.Join(err, fmt.Errorf("unlink %s: %w", path, uerr))
			}
		}
	}()

	zero := make([]byte, size)
	n, err := writeFd(fd, zero)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if n != size {
		return fmt.Errorf("write %s: %w: %d of %d bytes", path, ErrShortWrite, n, size)
	}
	return nil
}

// MapRegion opens an existing backing file read-write and maps exactly
// opts.Size bytes of it shared.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fd, err := unix.Open(opts.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	switch {
	case st.Size < int64(opts.Size):
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %d < %d bytes", ErrShortFile, st.Size, opts.Size)
	case st.Size > int64(opts.Size):
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %d != %d bytes", ErrSizeMismatch, st.Size, opts.Size)
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Size: opts.Size,
		Dev:  uint64(st.Dev), //nolint:unconvert // Dev is uint32 on some arches
		Ino:  st.Ino,
	}, nil
}

// UnmapRegion unmaps and closes the backing file.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(region.Addr); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		errs = append(errs, fmt.Errorf("close fd %d: %w", region.Fd, err))
	}
	return errors.Join(errs...)
}
