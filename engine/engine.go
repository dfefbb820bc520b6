// Package engine defines the workflow engine abstraction durable turn
// execution is built against. It lets the same workflow handler run on the
// in-process adapter (engine/inmem, the primary backend) or the optional
// Temporal-backed adapter (engine/temporalengine) without modification.
package engine

import (
	"context"
	"errors"
	"time"

	"turnengine/telemetry"
)

// ErrWorkflowNotFound is returned by QueryRunStatus-capable engines when the
// given run id has no recorded status.
var ErrWorkflowNotFound = errors.New("engine: workflow not found")

type (
	// Engine abstracts workflow/activity registration and execution so
	// adapters (in-process, Temporal) can be swapped without touching the
	// code that drives a turn.
	Engine interface {
		// RegisterWorkflow registers a workflow definition. Must be called
		// before StartWorkflow; returns an error on a duplicate name.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Must be called
		// before any workflow that executes it starts.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow launches a workflow execution and returns a handle.
		// req.ID must be unique for the engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a workflow entry point. For the in-process adapter
	// this runs as an ordinary goroutine; for the Temporal adapter it runs
	// under Temporal's deterministic replay, so handlers must not perform
	// direct I/O or use wall-clock time — use WorkflowContext.Now and
	// ExecuteActivity for anything with a side effect.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules an activity and blocks for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		// ExecuteActivityAsync schedules an activity without blocking,
		// enabling parallel activity execution (spec.md §8's
		// parallel-tool-call scenario).
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel for name, used for admin.Signal
		// delivery (cancel/shutdown) into a running workflow.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current time in a replay-safe manner.
		Now() time.Time
	}

	// Future represents a pending activity result. Get may be called more
	// than once and returns the same result/error each time.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler with default options.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs the side-effecting work of one activity
	// invocation (an LLM call, a tool call, an effect).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout defaults for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID          string
		Workflow    string
		TaskQueue   string
		Input       any
		Memo        map[string]any
		RetryPolicy RetryPolicy
	}

	// ActivityRequest schedules one activity invocation from a workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities. An all-zero policy leaves retries to the engine: the
	// in-process adapter never retries, and the Temporal adapter applies
	// Temporal's own default policy.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}

	// RunStatus is the lifecycle status of a workflow execution, queryable
	// on engines that track it (the in-process adapter; Temporal exposes
	// this natively through its own describe API instead).
	RunStatus string
)

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)
