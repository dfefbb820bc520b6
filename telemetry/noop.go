package telemetry

import (
	"context"
	"time"
)

type noopLogger struct{}

// NewNoopLogger returns a Logger that discards every entry. Useful as a
// default when callers do not configure telemetry explicitly.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any)    {}
func (noopLogger) Info(string, ...any)     {}
func (noopLogger) Warn(string, ...any)     {}
func (noopLogger) Error(string, ...any)    {}
func (l noopLogger) With(...any) Logger    { return l }

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics sink that discards every recording.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) IncCounter(string, int64, ...string)       {}
func (noopMetrics) RecordGauge(string, float64, ...string)    {}
func (noopMetrics) RecordDuration(string, time.Duration, ...string) {}

type noopTracer struct{}

// NewNoopTracer returns a Tracer whose spans are no-ops.
func NewNoopTracer() Tracer { return noopTracer{} }

func (noopTracer) StartSpan(ctx context.Context, _ string, _ ...string) (context.Context, func()) {
	return ctx, func() {}
}
