package notify

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/attrshm/pkg/notify"

type telemetry struct {
	meter  metric.Meter
	tracer trace.Tracer
}

func defaultTelemetry() telemetry {
	return telemetry{
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
}

// WithMeterProvider records delivery counters with mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meter = mp.Meter(instrumentationName)
		}
	}
}

// WithTracerProvider records one span per broadcast with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(instrumentationName)
		}
	}
}
