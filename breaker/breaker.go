// Package breaker implements the per-key circuit breaker (C3) described in
// spec.md §4.3: closed/open/half_open gating for a dependency identified by
// a stable string key (e.g. "llm:anthropic", "tool:weather"). The gate is
// consulted by taskqueue.Store.Claim before a task is handed to a worker,
// and reported to by the Activity Runtime after classifying an outcome.
package breaker

import "time"

// State mirrors spec.md §3's circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Settings configures a single breaker key. FailureThreshold and Window
// bound the closed->open transition; Cooldown bounds open->half_open.
type Settings struct {
	FailureThreshold uint32
	Window           time.Duration
	Cooldown         time.Duration
}

// Registry gates claims per dependency key and records outcomes. It
// satisfies taskqueue.BreakerGate.
type Registry interface {
	// Allow reports whether a claim for key should proceed right now. When
	// the breaker for key is half_open, only the first caller within the
	// cooldown window is admitted (probe=true); concurrent callers during
	// that window are refused until the probe resolves.
	Allow(key string) (allowed bool, probe bool)
	// Report records the outcome of the attempt admitted by the last Allow
	// for key; it has no effect when no Allow is outstanding. Only
	// success=false counts toward tripping the breaker: activity.Runtime
	// passes false for DependencyFault and Timeout outcomes and true for
	// everything else, including InvalidInput and Cancelled.
	Report(key string, success bool)
	// State returns the current state for key (StateClosed if never seen).
	State(key string) State
	// Reset forces key back to StateClosed, used by the admin surface
	// (POST /durable/circuit-breakers/{key}/reset).
	Reset(key string)
}
