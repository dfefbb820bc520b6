// Package telemetry defines the logging, metrics, and tracing facade used
// throughout the engine. Components depend on these interfaces rather than
// concrete backends so tests can substitute no-op implementations and
// deployments can wire zap/otel without touching orchestration code.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits leveled, structured log entries. Fields are passed as
	// alternating key/value pairs, mirroring zap's SugaredLogger convention.
	Logger interface {
		Debug(msg string, fields ...any)
		Info(msg string, fields ...any)
		Warn(msg string, fields ...any)
		Error(msg string, fields ...any)
		// With returns a Logger that prepends fields to every subsequent entry.
		With(fields ...any) Logger
	}

	// Metrics records counters, gauges, and durations. Implementations forward
	// to an OTEL MeterProvider or a no-op sink in tests.
	Metrics interface {
		IncCounter(name string, delta int64, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
		RecordDuration(name string, d time.Duration, tags ...string)
	}

	// Tracer creates spans for workflow and activity execution. Span is closed
	// by the returned func(); callers should defer it.
	Tracer interface {
		StartSpan(ctx context.Context, name string, tags ...string) (context.Context, func())
	}
)
