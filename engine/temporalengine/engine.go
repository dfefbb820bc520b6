// Package temporalengine adapts engine.Engine onto Temporal, the optional
// secondary durable backend named in spec.md §2's engine abstraction.
// Grounded on the teacher's runtime/agent/engine/temporal package: one
// Temporal worker per task queue, workflow/activity handlers wrapped to
// present engine.WorkflowContext, retry policies translated 1:1.
package temporalengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tactivity "go.temporal.io/sdk/activity"
	tclient "go.temporal.io/sdk/client"
	tworker "go.temporal.io/sdk/worker"
	tworkflow "go.temporal.io/sdk/workflow"

	"turnengine/engine"
	"turnengine/telemetry"
)

// Options configures the Temporal adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, New fails — unlike
	// the teacher's lazy-client convenience, this adapter requires the
	// caller to have already verified connectivity (spec.md's ambient
	// stack favors explicit startup failure over a deferred one).
	Client tclient.Client
	// DefaultTaskQueue is used when a WorkflowDefinition/ActivityDefinition
	// does not name its own queue.
	DefaultTaskQueue string
	Logger           telemetry.Logger
	Metrics          telemetry.Metrics
	Tracer           telemetry.Tracer
}

// Engine implements engine.Engine on top of a Temporal client/worker.
type Engine struct {
	client       tclient.Client
	defaultQueue string
	logger       telemetry.Logger
	metrics      telemetry.Metrics
	tracer       telemetry.Tracer

	mu        sync.Mutex
	workers   map[string]tworker.Worker
	workflows map[string]engine.WorkflowDefinition
	started   bool
}

// New constructs a Temporal-backed Engine. opts.Client and
// opts.DefaultTaskQueue are required.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, errors.New("temporalengine: Client is required")
	}
	if opts.DefaultTaskQueue == "" {
		return nil, errors.New("temporalengine: DefaultTaskQueue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Engine{
		client:       opts.Client,
		defaultQueue: opts.DefaultTaskQueue,
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
		workers:      make(map[string]tworker.Worker),
		workflows:    make(map[string]engine.WorkflowDefinition),
	}, nil
}

func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("temporalengine: invalid workflow definition")
	}
	w, err := e.workerForQueue(def.TaskQueue)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if _, dup := e.workflows[def.Name]; dup {
		e.mu.Unlock()
		return fmt.Errorf("temporalengine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	e.mu.Unlock()

	w.RegisterWorkflowWithOptions(func(tctx tworkflow.Context, input any) (any, error) {
		wfCtx := newWorkflowContext(e, tctx)
		return def.Handler(wfCtx, input)
	}, tworkflow.RegisterOptions{Name: def.Name})
	return nil
}

func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("temporalengine: invalid activity definition")
	}
	w, err := e.workerForQueue(def.Options.Queue)
	if err != nil {
		return err
	}
	w.RegisterActivityWithOptions(func(ctx context.Context, input any) (any, error) {
		return def.Handler(ctx, input)
	}, tactivity.RegisterOptions{Name: def.Name})
	return nil
}

func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, errors.New("temporalengine: workflow name is required")
	}
	e.mu.Lock()
	def, ok := e.workflows[req.Workflow]
	if !e.started {
		e.started = true
		for _, w := range e.workers {
			w := w
			go func() { _ = w.Run(tworker.InterruptCh()) }()
		}
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("temporalengine: workflow %q not registered", req.Workflow)
	}

	queue := req.TaskQueue
	if queue == "" {
		queue = def.TaskQueue
	}
	if queue == "" {
		queue = e.defaultQueue
	}

	startOpts := tclient.StartWorkflowOptions{ID: req.ID, TaskQueue: queue}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		startOpts.RetryPolicy = rp
	}
	run, err := e.client.ExecuteWorkflow(ctx, startOpts, req.Workflow, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporalengine: start workflow: %w", err)
	}
	return &workflowHandle{client: e.client, run: run}, nil
}

func (e *Engine) workerForQueue(queue string) (tworker.Worker, error) {
	if queue == "" {
		queue = e.defaultQueue
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[queue]; ok {
		return w, nil
	}
	w := tworker.New(e.client, queue, tworker.Options{})
	e.workers[queue] = w
	return w, nil
}

func convertRetryPolicy(rp engine.RetryPolicy) *tclient.RetryPolicy {
	if rp.MaxAttempts == 0 && rp.InitialInterval == 0 && rp.BackoffCoefficient == 0 {
		return nil
	}
	out := &tclient.RetryPolicy{MaximumAttempts: int32(rp.MaxAttempts)}
	if rp.InitialInterval > 0 {
		out.InitialInterval = rp.InitialInterval
	}
	if rp.BackoffCoefficient > 0 {
		out.BackoffCoefficient = rp.BackoffCoefficient
	}
	return out
}

type workflowHandle struct {
	client tclient.Client
	run    tclient.WorkflowRun
}

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}
