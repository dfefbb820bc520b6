// Package activity implements the Activity Runtime (C5): dispatch of a
// single claimed task to a handler chosen by activity type, with timeout,
// cancellation, outcome classification, and event emission wrapped around
// the handler call (spec.md §4.5).
package activity

import (
	"context"
	"time"

	"turnengine/eventlog"
)

// Kind models spec.md §9's tagged-dispatch variant:
// ActivityKind ∈ {Reason, Tool{name}, Effect{name}}.
type Kind string

const (
	KindReason Kind = "reason"
	KindTool   Kind = "tool"
	KindEffect Kind = "effect"
)

// Handler executes one activity invocation. input is the task payload
// (decoded by the handler itself, since the shape is activity-type
// specific); the returned map becomes the task's success result.
// DependencyFault/InvalidInput/Timeout/Cancelled are communicated by
// returning the corresponding error type from this package, not via ad hoc
// error strings, so Runtime can classify without string matching.
type Handler func(ctx context.Context, input map[string]any) (map[string]any, error)

// Registry maps "kind:name" activity types (e.g. "tool:add", "reason") to
// their Handler. Testing substitutes fakes by registering a different
// Handler under the same activity type (spec.md §9).
type Registry struct {
	handlers map[string]Handler
	timeouts map[string]time.Duration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler), timeouts: make(map[string]time.Duration)}
}

// Register binds activityType to handler with a hard wall-clock timeout.
// Per spec.md §5, the timeout must be less than the task's visibility
// timeout so the activity cancels itself before its lease expires.
func (r *Registry) Register(activityType string, handler Handler, timeout time.Duration) {
	r.handlers[activityType] = handler
	r.timeouts[activityType] = timeout
}

func (r *Registry) lookup(activityType string) (Handler, time.Duration, bool) {
	h, ok := r.handlers[activityType]
	if !ok {
		return nil, 0, false
	}
	return h, r.timeouts[activityType], true
}

// ToolActivityType returns the canonical "tool:<name>" activity type string
// for a tool call, matching spec.md §3's `tool#<tool_call_id>` activity id
// convention (the activity *type*, not the per-call activity id).
func ToolActivityType(toolName string) string { return "tool:" + toolName }

// startedEventType/completedEventType map an activity kind to the pair of
// closed-set event types the Runtime emits around a handler call
// (spec.md §4.5 step 1 and 4).
func startedEventType(kind Kind) eventlog.Type {
	if kind == KindReason {
		return eventlog.TypeReasonStarted
	}
	return eventlog.TypeToolCallStarted
}

func completedEventType(kind Kind) eventlog.Type {
	if kind == KindReason {
		return eventlog.TypeReasonCompleted
	}
	return eventlog.TypeToolCallCompleted
}
