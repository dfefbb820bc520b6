package activity

import (
	"context"
	"errors"
	"time"

	"turnengine/eventlog"
	"turnengine/taskqueue"
	"turnengine/telemetry"
)

// Runtime dispatches a single claimed taskqueue.Task to the Handler
// registered for its ActivityType, enforcing a per-activity timeout,
// classifying the outcome, emitting the started/completed event pair, and
// reporting the terminal outcome back to the Store and (when the task
// carries a BreakerKey) the circuit breaker (spec.md §4.5).
type Runtime struct {
	registry *Registry
	queue    taskqueue.Store
	events   eventlog.Appender
	gate     taskqueue.BreakerGate
	logger   telemetry.Logger

	backoffBase time.Duration
	backoffCap  time.Duration
	// defaultTimeout bounds activity types registered without an explicit
	// timeout; it must stay below the caller's visibility timeout or a slow
	// handler will lose its lease before Runtime notices.
	defaultTimeout time.Duration
}

// NewRuntime constructs a Runtime. gate may be nil if no breaker is wired
// (every task must then omit BreakerKey).
func NewRuntime(registry *Registry, queue taskqueue.Store, events eventlog.Appender, gate taskqueue.BreakerGate, backoffBase, backoffCap, defaultTimeout time.Duration, logger telemetry.Logger) *Runtime {
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	if backoffCap <= 0 {
		backoffCap = time.Minute
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Runtime{
		registry:       registry,
		queue:          queue,
		events:         events,
		gate:           gate,
		logger:         logger,
		backoffBase:    backoffBase,
		backoffCap:     backoffCap,
		defaultTimeout: defaultTimeout,
	}
}

// Execute runs task to completion: look up its handler, run it under a
// derived timeout, classify the result, emit events, and call
// queue.Complete. It never returns an error itself — every failure mode
// (unknown activity type, handler error, timeout, cancellation) is folded
// into the task's terminal Outcome, since the caller
// (workerpool.Pool.dispatch) has nothing more useful to do with an error
// than what Complete already recorded.
func (r *Runtime) Execute(ctx context.Context, task taskqueue.Task, workerID string, visibilityTimeout time.Duration) {
	kind := kindOf(task.ActivityType)
	sessionID := sessionIDFromPayload(task.Payload)
	r.events.Append(ctx, sessionID, startedEventType(kind), map[string]any{
		"activity_id":   task.ActivityID,
		"activity_type": task.ActivityType,
		"attempt":       task.Attempt,
	}, eventlog.Context{TurnID: task.WorkflowID})

	handler, timeout, ok := r.registry.lookup(task.ActivityType)
	if !ok {
		r.finish(ctx, task, workerID, kind, nil, NewInvalidInput(errors.New("activity: no handler registered for type "+task.ActivityType)))
		return
	}
	if timeout <= 0 || timeout > visibilityTimeout {
		timeout = r.defaultTimeout
		if visibilityTimeout > 0 && timeout > visibilityTimeout {
			timeout = visibilityTimeout
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out map[string]any
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		out, err := handler(runCtx, task.Payload)
		resCh <- result{out, err}
	}()

	var res result
	select {
	case res = <-resCh:
	case <-runCtx.Done():
		if ctx.Err() != nil {
			res = result{nil, &Fault{Class: ClassCancelled, Err: ctx.Err()}}
		} else {
			res = result{nil, &Fault{Class: ClassTimeout, Err: runCtx.Err()}}
		}
	}

	r.finish(ctx, task, workerID, kind, res.out, res.err)
}

func (r *Runtime) finish(ctx context.Context, task taskqueue.Task, workerID string, kind Kind, out map[string]any, err error) {
	class := classify(err)
	outcome := toOutcome(out, err, class)

	if task.BreakerKey != "" && r.gate != nil {
		r.gate.Report(task.BreakerKey, err == nil || !class.countsAgainstBreaker())
	}

	completed, completeErr := r.queue.Complete(ctx, task.ID, workerID, outcome, r.backoffBase, r.backoffCap)
	if completeErr != nil && !errors.Is(completeErr, taskqueue.ErrLeaseLost) {
		r.logger.Warn("complete failed", "task_id", task.ID, "error", completeErr)
	}

	r.events.Append(ctx, sessionIDFromPayload(task.Payload), completedEventType(kind), map[string]any{
		"activity_id":   task.ActivityID,
		"activity_type": task.ActivityType,
		"success":       outcome.Success,
		"error":         outcome.Err,
		"status":        string(completed.Status),
	}, eventlog.Context{TurnID: task.WorkflowID})
}

func toOutcome(out map[string]any, err error, class Classification) taskqueue.Outcome {
	if err == nil {
		return taskqueue.Outcome{Success: true, Result: out}
	}
	return taskqueue.Outcome{Success: false, Err: err.Error(), Retriable: class.retriable()}
}

func kindOf(activityType string) Kind {
	if activityType == string(KindReason) {
		return KindReason
	}
	if len(activityType) > len(KindEffect)+1 && activityType[:len(KindEffect)+1] == string(KindEffect)+":" {
		return KindEffect
	}
	return KindTool
}

// sessionIDFromPayload recovers the owning session id from the task
// payload ("" when absent). Every enqueuing call site must set
// "session_id" since taskqueue.Task itself only tracks
// workflow/activity ids, not session id (spec.md §3's cyclic-reference note:
// the Workflow State Machine holds a session id, not the Task Queue).
func sessionIDFromPayload(payload map[string]any) string {
	if v, ok := payload["session_id"].(string); ok {
		return v
	}
	return ""
}
