package watcher

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxGoroutines = 256

type metrics struct {
	reg          *prometheus.Registry
	received     *prometheus.CounterVec
	decodeErrors prometheus.Counter
	slot         prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attrshm",
			Subsystem: "watcher",
			Name:      "notifications_received_total",
			Help:      "Change notifications reported, by attribute.",
		}, []string{"attr"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrshm",
			Subsystem: "watcher",
			Name:      "decode_errors_total",
			Help:      "Notifications that named no known attribute or could not be read.",
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attrshm",
			Subsystem: "watcher",
			Name:      "slot",
			Help:      "Registry slot held by this watcher.",
		}),
	}
	m.reg.MustRegister(m.received, m.decodeErrors, m.slot)
	return m
}

func (m *metrics) handler(ready func() error) http.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("registry-slot", ready)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
	mux.Handle("/live", health)
	mux.Handle("/ready", health)
	return mux
}
