package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// otelMetrics adapts an OTEL Meter to the Metrics interface. Counters and
// histograms are created lazily and cached by name since OTEL instruments
// are meant to be long-lived.
type otelMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics returns a Metrics recorder backed by the given OTEL Meter.
func NewOtelMetrics(meter metric.Meter) Metrics {
	return &otelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

func (m *otelMetrics) IncCounter(name string, delta int64, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Int64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), delta, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *otelMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			return
		}
		m.gauges[name] = g
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *otelMetrics) RecordDuration(name string, d time.Duration, tags ...string) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name, metric.WithUnit("ms"))
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), float64(d.Milliseconds()), metric.WithAttributes(tagsToAttrs(tags)...))
}

// otelTracer adapts an OTEL Tracer to the Tracer interface.
type otelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer returns a Tracer backed by the given OTEL Tracer.
func NewOtelTracer(t trace.Tracer) Tracer {
	return otelTracer{tracer: t}
}

func (t otelTracer) StartSpan(ctx context.Context, name string, tags ...string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(tagsToAttrs(tags)...))
	return ctx, func() { span.End() }
}
