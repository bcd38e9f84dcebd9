// Package store maps the shared record file and gives typed, bounds-checked
// access to its attributes and watcher slots.
//
// Every process that opens the same path gets its own MAP_SHARED mapping, so
// a Write is visible to all of them immediately. Nothing is flushed explicitly
// and nothing is locked: each attribute integer and each watcher slot is read
// and written with a single aligned atomic operation, text fields are plain
// copies and concurrent writers follow last-writer-wins.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/srediag/attrshm/internal/shm"
	"github.com/srediag/attrshm/pkg/record"
	"github.com/srediag/attrshm/pkg/schema"
)

const defaultOpenRetry = time.Second

var (
	// ErrIO wraps every failure to create, size, map or unmap the backing file.
	ErrIO = errors.New("record io")
	// ErrRecordSize means the backing file exists but its size is not the record size.
	ErrRecordSize = errors.New("backing file has wrong size")
	// ErrNoSpace means the filesystem cannot hold a new backing file.
	ErrNoSpace = errors.New("not enough space for backing file")
	// ErrClosed is returned by accessors after Close.
	ErrClosed = errors.New("store closed")
	// ErrOutOfRange is returned for a descriptor that does not fit in the record.
	ErrOutOfRange = errors.New("attribute outside record")
	// ErrKindMismatch is returned when a value's kind differs from the attribute's.
	ErrKindMismatch = errors.New("value kind does not match attribute")
)

// Option configures Open.
type Option func(*options)

type options struct {
	layout    record.Layout
	logger    *zap.Logger
	openRetry time.Duration
	create    bool
}

// WithLayout maps a record other than record.PersonLayout.
func WithLayout(l record.Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOpenRetry bounds how long Open waits for a backing file that another
// process is still zero-filling.
func WithOpenRetry(d time.Duration) Option {
	return func(o *options) { o.openRetry = d }
}

// WithoutCreate makes Open fail instead of creating a missing backing file.
func WithoutCreate() Option {
	return func(o *options) { o.create = false }
}

// Store is one process's mapping of the shared record. It is not safe to call
// Close concurrently with the other methods.
type Store struct {
	path   string
	layout record.Layout
	log    *zap.Logger
	region *shm.MappedRegion
	mem    []byte

	closeOnce sync.Once
	closeErr  error
}

// Open maps the record at path, creating and zero-filling the file first if
// it does not exist.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{
		layout:    record.PersonLayout,
		logger:    zap.NewNop(),
		openRetry: defaultOpenRetry,
		create:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	mapOpts := shm.MapOptions{Path: path, Size: o.layout.Size}

	attempt := func() (*shm.MappedRegion, error) {
		region, err := shm.MapRegion(ctx, mapOpts)
		if errors.Is(err, os.ErrNotExist) && o.create {
			if err := createFile(path, o.layout.Size, o.logger); err != nil {
				return nil, backoff.Permanent(err)
			}
			region, err = shm.MapRegion(ctx, mapOpts)
		}
		switch {
		case err == nil:
			return region, nil
		case errors.Is(err, shm.ErrShortFile):
			o.logger.Debug("backing file not fully created yet", zap.String("path", path), zap.Error(err))
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if o.openRetry > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 5 * time.Millisecond
		eb.MaxElapsedTime = o.openRetry
		b = eb
	}
	region, err := backoff.RetryWithData(attempt, backoff.WithContext(b, ctx))
	if err != nil {
		if errors.Is(err, shm.ErrShortFile) || errors.Is(err, shm.ErrSizeMismatch) {
			return nil, fmt.Errorf("%w: %s: %w: %w", ErrIO, path, ErrRecordSize, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrIO, path, err)
	}
	o.logger.Debug("record mapped",
		zap.String("path", path),
		zap.Int("size", region.Size),
		zap.Uint64("ino", region.Ino))
	return &Store{
		path:   path,
		layout: o.layout,
		log:    o.logger,
		region: region,
		mem:    region.Addr,
	}, nil
}

func createFile(path string, size int, log *zap.Logger) error {
	if !canCreate(uint64(size), path) {
		return fmt.Errorf("%w: %d bytes at %s", ErrNoSpace, size, path)
	}
	err := shm.CreateFile(path, size)
	if errors.Is(err, os.ErrExist) {
		// another process won the race, map its file
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("created backing file", zap.String("path", path), zap.Int("size", size))
	return nil
}

// canCreate reports whether the filesystem holding path has size bytes free.
// If usage cannot be determined the answer is yes and the write decides.
func canCreate(size uint64, path string) bool {
	stat, err := disk.Usage(filepath.Dir(path))
	if err != nil {
		return true
	}
	return stat.Free >= size
}

// Close unmaps the record and closes the file. Calling it again is a no-op.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mem = nil
		if err := shm.UnmapRegion(context.Background(), s.region); err != nil {
			s.closeErr = fmt.Errorf("%w: %s: %w", ErrIO, s.path, err)
			return
		}
		s.log.Debug("record unmapped", zap.String("path", s.path))
	})
	return s.closeErr
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Layout returns the record layout.
func (s *Store) Layout() record.Layout { return s.layout }

// Table returns the attribute table.
func (s *Store) Table() *schema.Table { return s.layout.Table }

// Inode returns the device and inode of the backing file. Processes that map
// the same record see the same pair.
func (s *Store) Inode() (dev, ino uint64) {
	return s.region.Dev, s.region.Ino
}

func (s *Store) field(d schema.Descriptor) ([]byte, error) {
	if s.mem == nil {
		return nil, ErrClosed
	}
	if d.Offset < 0 || d.Size <= 0 || d.Offset > len(s.mem)-d.Size {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, d)
	}
	return s.mem[d.Offset : d.Offset+d.Size], nil
}
