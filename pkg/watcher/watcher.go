// Package watcher implements the long-lived subscriber: it registers in the
// record's watcher registry, waits for change notifications and reports the
// changed attribute with its current value.
//
// Notifications are received on a separate goroutine that only decodes and
// enqueues them. Run's goroutine owns all state and is the only one that reads
// the record or writes output; it blocks on the queue with no polling or
// timeout. Cancelling the context disposes the queue, which interrupts that
// wait, and cleanup (unregister, close endpoint, unmap) always follows.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/srediag/attrshm/pkg/notify"
	"github.com/srediag/attrshm/pkg/store"
)

const queueHint = 16

// ErrDecode is reported when a notification names no known attribute.
var ErrDecode = errors.New("cannot decode notification")

// Report is one handled notification.
type Report struct {
	Name   string
	Value  store.Value
	Sender store.Identity
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithOutput sets where reports are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(wt *Watcher) {
		if w != nil {
			wt.out = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(wt *Watcher) {
		if l != nil {
			wt.log = l
		}
	}
}

// WithIdentity overrides the identity registered in the record. Defaults to
// the process id.
func WithIdentity(id store.Identity) Option {
	return func(wt *Watcher) { wt.id = id }
}

// WithMetricsAddr serves /metrics, /live and /ready on addr while running.
func WithMetricsAddr(addr string) Option {
	return func(wt *Watcher) { wt.metricsAddr = addr }
}

// WithNotifyOptions passes options to the notification listener.
func WithNotifyOptions(opts ...notify.Option) Option {
	return func(wt *Watcher) { wt.notifyOpts = append(wt.notifyOpts, opts...) }
}

// OnReady is called from Run once the watcher is registered and listening.
func OnReady(f func(slot int)) Option {
	return func(wt *Watcher) { wt.onReady = f }
}

// OnEvent is called from Run after each report is printed.
func OnEvent(f func(Report)) Option {
	return func(wt *Watcher) { wt.onEvent = f }
}

// Watcher is a subscriber of one shared record.
type Watcher struct {
	store       *store.Store
	id          store.Identity
	out         io.Writer
	log         *zap.Logger
	metricsAddr string
	notifyOpts  []notify.Option
	onReady     func(slot int)
	onEvent     func(Report)

	metrics   *metrics
	slot      int
	boundAddr string
}

// New returns a watcher of s. Run takes ownership of s and closes it.
func New(s *store.Store, opts ...Option) *Watcher {
	w := &Watcher{
		store:   s,
		id:      store.Identity(os.Getpid()),
		out:     os.Stdout,
		log:     zap.NewNop(),
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run registers the watcher and handles notifications until ctx is done. It
// returns nil after a requested shutdown.
func (w *Watcher) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := w.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	l, err := notify.Listen(notify.KeyOf(w.store), w.id, append([]notify.Option{notify.WithLogger(w.log)}, w.notifyOpts...)...)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	var srv *http.Server
	var ln net.Listener
	if w.metricsAddr != "" {
		if ln, err = net.Listen("tcp", w.metricsAddr); err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		w.boundAddr = ln.Addr().String()
		srv = &http.Server{Handler: w.metrics.handler(w.ready), ReadHeaderTimeout: 5 * time.Second}
	}

	slot, evicted, err := w.store.Register(w.id)
	if err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return err
	}
	w.slot = slot
	defer func() {
		if !w.store.Unregister(slot, w.id) {
			w.log.Warn("slot no longer held at shutdown", zap.Int("slot", slot))
		}
	}()
	if evicted != 0 {
		w.log.Warn("evicted a watcher from slot 0", zap.Int32("evicted", int32(evicted)))
	}
	w.metrics.slot.Set(float64(slot))
	w.log.Info("watcher registered",
		zap.String("path", w.store.Path()),
		zap.Int("slot", slot),
		zap.Int32("id", int32(w.id)),
		zap.String("endpoint", l.Endpoint()))

	if _, err := io.WriteString(w.out, "watching...\n"); err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return err
	}

	q := queue.New(queueHint)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		q.Dispose()
		return l.Close()
	})
	g.Go(func() error {
		return pump(l, q)
	})
	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if w.onReady != nil {
		w.onReady(slot)
	}
	w.loop(q)

	err = g.Wait()
	w.log.Info("watcher stopping", zap.Int("slot", slot))
	return err
}

func pump(l *notify.Listener, q *queue.Queue) error {
	for {
		ev, err := l.Receive()
		if err != nil {
			if errors.Is(err, notify.ErrClosed) {
				return nil
			}
			return err
		}
		if err := q.Put(ev); err != nil {
			return nil
		}
	}
}

// loop consumes events until the queue is disposed.
func (w *Watcher) loop(q *queue.Queue) {
	for {
		items, err := q.Get(1)
		if err != nil {
			return
		}
		for _, it := range items {
			ev, ok := it.(notify.Event)
			if !ok {
				continue
			}
			w.handle(ev)
		}
	}
}

func (w *Watcher) handle(ev notify.Event) {
	d, err := w.store.Table().ResolveByOffset(int(ev.Offset))
	if err != nil {
		w.metrics.decodeErrors.Inc()
		w.log.Error("notification dropped",
			zap.Int32("sender", int32(ev.Sender)),
			zap.Error(fmt.Errorf("%w: %w", ErrDecode, err)))
		return
	}
	v, err := w.store.Read(d)
	if err != nil {
		w.metrics.decodeErrors.Inc()
		w.log.Error("read attribute", zap.String("attr", d.Name), zap.Error(err))
		return
	}
	w.metrics.received.WithLabelValues(d.Name).Inc()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString(d.Name)
	_, _ = buf.WriteString(": '")
	_, _ = buf.WriteString(v.String())
	_, _ = buf.WriteString("' from '")
	buf.B = strconv.AppendInt(buf.B, int64(ev.Sender), 10)
	_, _ = buf.WriteString("'\n")
	if _, err := w.out.Write(buf.B); err != nil {
		w.log.Warn("write report", zap.Error(err))
	}

	if w.onEvent != nil {
		w.onEvent(Report{Name: d.Name, Value: v, Sender: ev.Sender})
	}
}

// MetricsAddr returns the address the metrics server is bound to once Run
// has reported ready, or "" when metrics are off.
func (w *Watcher) MetricsAddr() string { return w.boundAddr }

// ready reports whether the registry still names this watcher.
func (w *Watcher) ready() error {
	owner, err := w.store.Owner(w.slot)
	if err != nil {
		return err
	}
	if owner != w.id {
		return fmt.Errorf("slot %d held by %d", w.slot, owner)
	}
	return nil
}
