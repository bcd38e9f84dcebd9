// Package setter implements the one-shot attribute operation: read an
// attribute, optionally write it, and tell every watcher that it changed.
package setter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/srediag/attrshm/pkg/notify"
	"github.com/srediag/attrshm/pkg/schema"
	"github.com/srediag/attrshm/pkg/store"
)

// ErrInvalidValue is returned when a value cannot be parsed for its attribute.
var ErrInvalidValue = errors.New("invalid value")

// Result describes one completed operation.
type Result struct {
	Descriptor schema.Descriptor
	Value      store.Value
	Written    bool
	Truncated  bool
	Deliveries []notify.Delivery
}

// Option configures a Setter.
type Option func(*Setter)

// WithOutput sets where the resulting value is printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Setter) {
		if w != nil {
			s.out = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Setter) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracerProvider traces each operation with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Setter) {
		if tp != nil {
			s.tracer = tp.Tracer("github.com/srediag/attrshm/pkg/setter")
			s.notifyOpts = append(s.notifyOpts, notify.WithTracerProvider(tp))
		}
	}
}

// WithNotifyOptions passes options to the broadcaster.
func WithNotifyOptions(opts ...notify.Option) Option {
	return func(s *Setter) { s.notifyOpts = append(s.notifyOpts, opts...) }
}

// Setter runs attribute operations against one open store.
type Setter struct {
	store      *store.Store
	out        io.Writer
	log        *zap.Logger
	tracer     trace.Tracer
	notifyOpts []notify.Option
	bc         *notify.Broadcaster
}

// New returns a setter for s. The caller keeps ownership of s; Close releases
// only the setter's own resources.
func New(s *store.Store, opts ...Option) (*Setter, error) {
	st := &Setter{
		store:  s,
		out:    os.Stdout,
		log:    zap.NewNop(),
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(st)
	}
	bc, err := notify.NewBroadcaster(notify.KeyOf(s),
		append([]notify.Option{notify.WithLogger(st.log)}, st.notifyOpts...)...)
	if err != nil {
		return nil, err
	}
	st.bc = bc
	return st, nil
}

// Broadcaster returns the broadcaster used for notifications.
func (s *Setter) Broadcaster() *notify.Broadcaster { return s.bc }

// Close releases the broadcaster.
func (s *Setter) Close() {
	s.bc.Close()
}

// ParseValue converts raw into a value for attribute d.
func ParseValue(d schema.Descriptor, raw string) (store.Value, error) {
	switch d.Kind {
	case schema.KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, d.Size*8)
		if err != nil {
			return store.Value{}, fmt.Errorf("%w for %s: %q: %w", ErrInvalidValue, d.Name, raw, err)
		}
		return store.IntValue(n), nil
	case schema.KindText:
		return store.TextValue(raw), nil
	}
	return store.Value{}, fmt.Errorf("%w for %s: unsupported kind %s", ErrInvalidValue, d.Name, d.Kind)
}

// Run resolves name, writes value when it is not nil, prints the resulting
// value and, only if something was written, notifies every active watcher.
// Notification failures are logged and returned in the result; they never
// make Run fail.
func (s *Setter) Run(ctx context.Context, name string, value *string) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "setter.Run", trace.WithAttributes(
		attribute.String("attrshm.attr", name),
		attribute.Bool("attrshm.write", value != nil),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	d, err := s.store.Table().Resolve(name)
	if err != nil {
		return Result{}, err
	}
	res.Descriptor = d

	if value != nil {
		v, err := ParseValue(d, *value)
		if err != nil {
			return res, err
		}
		truncated, err := s.store.Write(d, v)
		if err != nil {
			return res, err
		}
		res.Written = true
		res.Truncated = truncated
	}

	cur, err := s.store.Read(d)
	if err != nil {
		return res, err
	}
	res.Value = cur
	if _, err := fmt.Fprintln(s.out, cur.String()); err != nil {
		return res, err
	}

	if !res.Written {
		return res, nil
	}
	watchers, err := s.store.ActiveIdentities()
	if err != nil {
		return res, err
	}
	if len(watchers) == 0 {
		s.log.Debug("no watchers to notify", zap.String("attr", d.Name))
		return res, nil
	}
	res.Deliveries = s.bc.Broadcast(ctx, watchers, d.Offset)
	return res, nil
}
