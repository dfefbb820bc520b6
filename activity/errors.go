package activity

import "errors"

// Classification is the outcome category the Runtime derives from a
// handler's returned error, driving both taskqueue.Outcome.Retriable and
// breaker.Registry.Report (spec.md §4.5, §4.3). Grounded on the teacher's
// runtime/agent/model.ProviderErrorKind enum (Unavailable/RateLimited map to
// DependencyFault, InvalidRequest maps to InvalidInput), generalized here to
// cover non-LLM activities (tools, effects) as well.
type Classification string

const (
	// ClassDependencyFault is a transient failure of an external dependency
	// (LLM provider 5xx/429, tool backend timeout, network error): retriable,
	// and reported as a breaker failure.
	ClassDependencyFault Classification = "dependency_fault"
	// ClassInvalidInput is a malformed or rejected request (schema validation
	// failure, provider 400): not retriable, not reported to the breaker.
	ClassInvalidInput Classification = "invalid_input"
	// ClassTimeout is the Runtime's own per-activity wall-clock timeout firing:
	// retriable, reported as a breaker failure.
	ClassTimeout Classification = "timeout"
	// ClassCancelled is caller/workflow cancellation (ctx.Done from outside the
	// Runtime's own timeout): not retriable, not reported to the breaker.
	ClassCancelled Classification = "cancelled"
)

// Fault wraps a classified error so Runtime need not string-match to decide
// retriability. Handlers return *Fault directly, or Runtime synthesizes one
// from a bare error (treated as ClassDependencyFault, the conservative
// default that preserves retries) or from ctx.Err().
type Fault struct {
	Class Classification
	Err   error
}

func (f *Fault) Error() string { return f.Err.Error() }
func (f *Fault) Unwrap() error { return f.Err }

// NewDependencyFault wraps err as a retriable dependency failure.
func NewDependencyFault(err error) *Fault { return &Fault{Class: ClassDependencyFault, Err: err} }

// NewInvalidInput wraps err as a non-retriable input rejection.
func NewInvalidInput(err error) *Fault { return &Fault{Class: ClassInvalidInput, Err: err} }

// classify maps a handler error to a Classification, defaulting bare errors
// to ClassDependencyFault so an un-annotated failure still retries rather
// than silently landing in the DLQ on first attempt.
func classify(err error) Classification {
	if err == nil {
		return ""
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Class
	}
	return ClassDependencyFault
}

// retriable reports whether Classification should be retried by the task
// queue's backoff schedule.
func (c Classification) retriable() bool {
	switch c {
	case ClassInvalidInput, ClassCancelled:
		return false
	default:
		return true
	}
}

// countsAgainstBreaker reports whether Classification should be reported to
// the breaker.Registry as a dependency failure (spec.md §4.3: only faults
// attributable to the dependency count, not caller mistakes or cancellation).
func (c Classification) countsAgainstBreaker() bool {
	switch c {
	case ClassDependencyFault, ClassTimeout:
		return true
	default:
		return false
	}
}
