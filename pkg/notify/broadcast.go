package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/srediag/attrshm/pkg/store"
)

// SendFunc delivers one event. Notify is the default.
type SendFunc func(ctx context.Context, key Key, target store.Identity, ev Event, timeout time.Duration) error

// Delivery is the outcome of notifying one watcher.
type Delivery struct {
	Watcher store.Watcher
	Err     error
}

// Broadcaster notifies every active watcher of one record.
type Broadcaster struct {
	key     Key
	self    store.Identity
	timeout time.Duration
	send    SendFunc
	pool    *ants.Pool
	log     *zap.Logger
	tracer  trace.Tracer

	delivered metric.Int64Counter
	failed    metric.Int64Counter
}

// NewBroadcaster returns a broadcaster for record key. Release it with Close.
func NewBroadcaster(key Key, opts ...Option) (*Broadcaster, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("notify pool: %w", err)
	}
	delivered, err := o.meter.Int64Counter("attrshm.notify.delivered",
		metric.WithDescription("Notifications handed to a watcher endpoint."))
	if err != nil {
		pool.Release()
		return nil, err
	}
	failed, err := o.meter.Int64Counter("attrshm.notify.failed",
		metric.WithDescription("Notifications that could not be delivered."))
	if err != nil {
		pool.Release()
		return nil, err
	}
	return &Broadcaster{
		key:       key,
		self:      store.Identity(os.Getpid()),
		timeout:   o.timeout,
		send:      Notify,
		pool:      pool,
		log:       o.logger,
		tracer:    o.tracer,
		delivered: delivered,
		failed:    failed,
	}, nil
}

// SetSendFunc replaces the transport, mainly for tests.
func (b *Broadcaster) SetSendFunc(f SendFunc) {
	if f != nil {
		b.send = f
	}
}

// Broadcast sends the offset to every watcher and returns one Delivery per
// watcher in the given order. A failed send is logged and does not stop the
// others.
func (b *Broadcaster) Broadcast(ctx context.Context, watchers []store.Watcher, offset int) []Delivery {
	ctx, span := b.tracer.Start(ctx, "notify.Broadcast", trace.WithAttributes(
		attribute.Int("attrshm.offset", offset),
		attribute.Int("attrshm.watchers", len(watchers)),
	))
	defer span.End()

	ev := Event{Sender: b.self, Offset: uint32(offset)}
	out := make([]Delivery, len(watchers))
	var wg sync.WaitGroup
	for i, w := range watchers {
		out[i].Watcher = w
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			out[i].Err = b.send(ctx, b.key, w.ID, ev, b.timeout)
		})
		if err != nil {
			wg.Done()
			out[i].Err = fmt.Errorf("%w: id %d: %w", ErrNotDelivered, w.ID, err)
		}
	}
	wg.Wait()

	failures := 0
	for _, d := range out {
		attrs := metric.WithAttributes(attribute.Int("attrshm.slot", d.Watcher.Slot))
		if d.Err != nil {
			failures++
			b.failed.Add(ctx, 1, attrs)
			b.log.Warn("notification not delivered",
				zap.Int("slot", d.Watcher.Slot),
				zap.Int32("id", int32(d.Watcher.ID)),
				zap.Error(d.Err))
			continue
		}
		b.delivered.Add(ctx, 1, attrs)
		b.log.Debug("notified watcher", zap.Int("slot", d.Watcher.Slot), zap.Int32("id", int32(d.Watcher.ID)))
	}
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d notifications not delivered", failures, len(watchers)))
	}
	return out
}

// Close releases the worker pool.
func (b *Broadcaster) Close() {
	b.pool.Release()
}
