//go:build linux

package shm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCreateAndMapRegion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "record.dat")

	require.NoError(t, CreateFile(path, 128))
	err := CreateFile(path, 128)
	assert.ErrorIs(t, err, unix.EEXIST)

	a, err := MapRegion(ctx, MapOptions{Path: path, Size: 128})
	require.NoError(t, err)
	b, err := MapRegion(ctx, MapOptions{Path: path, Size: 128})
	require.NoError(t, err)

	assert.Equal(t, a.Ino, b.Ino)
	assert.Equal(t, a.Dev, b.Dev)

	a.Addr[7] = 'x'
	assert.Equal(t, byte('x'), b.Addr[7], "MAP_SHARED writes are visible through every mapping")

	require.NoError(t, UnmapRegion(ctx, a))
	require.NoError(t, UnmapRegion(ctx, a), "second unmap is a no-op")
	require.NoError(t, UnmapRegion(ctx, b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 128)
	assert.Equal(t, byte('x'), data[7])
}

func TestMapRegionSizeChecks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	short := filepath.Join(dir, "short.dat")
	require.NoError(t, os.WriteFile(short, make([]byte, 10), 0o644))
	_, err := MapRegion(ctx, MapOptions{Path: short, Size: 64})
	assert.ErrorIs(t, err, ErrShortFile)

	long := filepath.Join(dir, "long.dat")
	require.NoError(t, os.WriteFile(long, make([]byte, 100), 0o644))
	_, err = MapRegion(ctx, MapOptions{Path: long, Size: 64})
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = MapRegion(ctx, MapOptions{Path: filepath.Join(dir, "missing.dat"), Size: 64})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateFileRemovesPartialFile(t *testing.T) {
	orig := writeFd
	t.Cleanup(func() { writeFd = orig })
	dir := t.TempDir()

	writeFd = func(fd int, p []byte) (int, error) {
		n, err := orig(fd, p[:len(p)/2])
		return n, err
	}
	short := filepath.Join(dir, "short.dat")
	err := CreateFile(short, 128)
	assert.ErrorIs(t, err, ErrShortWrite)
	_, err = os.Stat(short)
	assert.ErrorIs(t, err, os.ErrNotExist, "partial file must not outlive a failed create")

	writeFd = func(int, []byte) (int, error) { return 0, unix.ENOSPC }
	full := filepath.Join(dir, "full.dat")
	err = CreateFile(full, 128)
	assert.ErrorIs(t, err, unix.ENOSPC)
	_, err = os.Stat(full)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// a later create starts from scratch
	writeFd = orig
	require.NoError(t, CreateFile(full, 128))
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Len(t, data, 128)
}
