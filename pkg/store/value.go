package store

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/srediag/attrshm/internal/shm"
	"github.com/srediag/attrshm/pkg/schema"
)

// Value is the decoded content of one attribute.
type Value struct {
	Kind schema.Kind
	Int  int64
	Text string
}

// IntValue returns an Integer value.
func IntValue(v int64) Value { return Value{Kind: schema.KindInteger, Int: v} }

// TextValue returns a Text value.
func TextValue(s string) Value { return Value{Kind: schema.KindText, Text: s} }

func (v Value) String() string {
	if v.Kind == schema.KindInteger {
		return strconv.FormatInt(v.Int, 10)
	}
	return v.Text
}

// Read returns the current value of the attribute d.
func (s *Store) Read(d schema.Descriptor) (Value, error) {
	buf, err := s.field(d)
	if err != nil {
		return Value{}, err
	}
	switch d.Kind {
	case schema.KindInteger:
		n, err := s.loadInt(d)
		if err != nil {
			return Value{}, err
		}
		return IntValue(n), nil
	case schema.KindText:
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			buf = buf[:i]
		}
		return TextValue(string(buf)), nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrKindMismatch, d)
	}
}

func (s *Store) loadInt(d schema.Descriptor) (int64, error) {
	switch d.Size {
	case 4:
		n, err := shm.AtomicLoadInt32(s.mem, d.Offset)
		return int64(n), err
	case 8:
		return shm.AtomicLoadInt64(s.mem, d.Offset)
	}
	return 0, fmt.Errorf("%w: integer width %d", ErrOutOfRange, d.Size)
}

// Write stores v into the attribute d. Text longer than the field capacity
// (d.Size-1 bytes) is cut at the capacity, backing off to the last complete
// UTF-8 sequence, and truncated reports that; the field is always nul
// terminated and never written past its end.
func (s *Store) Write(d schema.Descriptor, v Value) (truncated bool, err error) {
	buf, err := s.field(d)
	if err != nil {
		return false, err
	}
	if v.Kind != d.Kind {
		return false, fmt.Errorf("%w: %s value for %s", ErrKindMismatch, v.Kind, d)
	}
	switch d.Kind {
	case schema.KindInteger:
		return false, s.storeInt(d, v.Int)
	case schema.KindText:
		payload := v.Text
		if len(payload) > d.Size-1 {
			payload = payload[:runeCut(payload, d.Size-1)]
			truncated = true
			s.log.Warn("text value truncated to field capacity",
				zap.String("attr", d.Name),
				zap.Int("capacity", d.Size-1),
				zap.Int("length", len(v.Text)))
		}
		// overwrite in place so a concurrent reader never sees an empty field
		n := copy(buf, payload)
		clear(buf[n:])
		return truncated, nil
	}
	return false, fmt.Errorf("%w: %s", ErrKindMismatch, d)
}

// runeCut returns the largest length <= limit that does not split a UTF-8
// sequence of s. Input that is not UTF-8 is cut at limit.
func runeCut(s string, limit int) int {
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		return limit
	}
	return n
}

func (s *Store) storeInt(d schema.Descriptor, n int64) error {
	switch d.Size {
	case 4:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return fmt.Errorf("%w: %d does not fit %s", ErrOutOfRange, n, d)
		}
		return shm.AtomicStoreInt32(s.mem, d.Offset, int32(n))
	case 8:
		return shm.AtomicStoreInt64(s.mem, d.Offset, n)
	}
	return fmt.Errorf("%w: integer width %d", ErrOutOfRange, d.Size)
}
