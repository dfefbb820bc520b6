// Package admin exposes the core's admin operations as plain Go functions
// (spec.md §4.9, an expansion supplementing the HTTP surface spec.md
// scopes out but still names as part of the core's contract: cancel,
// signal, DLQ requeue, breaker reset, drain). An out-of-scope HTTP layer
// would call these directly. Grounded on the teacher's
// runtime/agent/interrupt.Controller (signal delivery into a running
// workflow) and registry/health_tracker.go's admin-style state-inspection
// shape.
package admin

import (
	"context"
	"errors"

	"turnengine/breaker"
	"turnengine/session"
	"turnengine/taskqueue"
	"turnengine/workerpool"
)

// SignalType is the closed set of signals a workflow accepts (spec.md §6).
type SignalType string

const (
	// SignalShutdown asks the turn to gracefully end its current iteration
	// and transition to completed rather than scheduling another reason.
	SignalShutdown SignalType = "shutdown"
	// SignalCancel asks for immediate cancellation, as Cancel does.
	SignalCancel SignalType = "cancel"
)

// ErrUnknownSignal is returned for any signal type outside the closed set.
var ErrUnknownSignal = errors.New("admin: unknown signal type")

// Surface wires the admin operations against the live components. It holds
// no state of its own beyond references to the stores it administers.
type Surface struct {
	Sessions session.Store
	Tasks    taskqueue.Store
	Breakers breaker.Registry
	Workers  workerpool.Registry
	// Signals receives delivered signals for the engine to observe
	// alongside its event log, since the signal set (spec.md §6) is too
	// small to warrant its own durable store — a workflow's next Fold call
	// picks up a pending signal the same way it picks up a cancel.
	Signals SignalSink
}

// SignalSink is the narrow interface the engine implements to receive a
// delivered signal (grounded on runtime/agent/interrupt.Controller's
// single-method interrupt delivery).
type SignalSink interface {
	Deliver(ctx context.Context, workflowID string, signal SignalType, payload map[string]any) error
}

// NewSurface constructs an admin Surface.
func NewSurface(sessions session.Store, tasks taskqueue.Store, breakers breaker.Registry, workers workerpool.Registry, signals SignalSink) *Surface {
	return &Surface{Sessions: sessions, Tasks: tasks, Breakers: breakers, Workers: workers, Signals: signals}
}

// Cancel cancels every non-terminal task for workflowID and delivers a
// cancel signal so the engine can emit turn.failed{error_code=cancelled}
// at its next opportunity (spec.md §5 "Cancellation").
func (s *Surface) Cancel(ctx context.Context, workflowID string) error {
	if err := s.Tasks.Cancel(ctx, workflowID, ""); err != nil {
		return err
	}
	if s.Signals != nil {
		return s.Signals.Deliver(ctx, workflowID, SignalCancel, nil)
	}
	return nil
}

// Signal delivers signalType to workflowID. Unknown signal types are
// rejected (spec.md §6).
func (s *Surface) Signal(ctx context.Context, workflowID string, signalType SignalType, payload map[string]any) error {
	switch signalType {
	case SignalShutdown, SignalCancel:
	default:
		return ErrUnknownSignal
	}
	if signalType == SignalCancel {
		return s.Cancel(ctx, workflowID)
	}
	if s.Signals == nil {
		return nil
	}
	return s.Signals.Deliver(ctx, workflowID, signalType, payload)
}

// RequeueDLQ creates a fresh task from a dead-lettered entry.
func (s *Surface) RequeueDLQ(ctx context.Context, dlqID string) (taskqueue.Task, error) {
	return s.Tasks.DLQRequeue(ctx, dlqID)
}

// ResetBreaker forces key back to closed.
func (s *Surface) ResetBreaker(key string) {
	s.Breakers.Reset(key)
}

// DrainWorker asks a worker to stop accepting new tasks while letting
// in-flight ones finish.
func (s *Surface) DrainWorker(ctx context.Context, workerID string) error {
	return s.Workers.MarkStatus(ctx, workerID, workerpool.StateDraining)
}
