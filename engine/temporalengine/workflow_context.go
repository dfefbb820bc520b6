package temporalengine

import (
	"context"
	"time"

	tsdktemporal "go.temporal.io/sdk/temporal"
	tworkflow "go.temporal.io/sdk/workflow"

	"turnengine/engine"
	"turnengine/telemetry"
)

func convertActivityRetryPolicy(rp engine.RetryPolicy) *tsdktemporal.RetryPolicy {
	if rp.MaxAttempts == 0 && rp.InitialInterval == 0 && rp.BackoffCoefficient == 0 {
		return nil
	}
	out := &tsdktemporal.RetryPolicy{MaximumAttempts: int32(rp.MaxAttempts)}
	if rp.InitialInterval > 0 {
		out.InitialInterval = rp.InitialInterval
	}
	if rp.BackoffCoefficient > 0 {
		out.BackoffCoefficient = rp.BackoffCoefficient
	}
	return out
}

// workflowContext adapts a Temporal workflow.Context into engine.WorkflowContext.
// Methods on it run under Temporal's deterministic replay, so Now() and
// ExecuteActivity must go through the SDK rather than touch wall-clock time
// or the engine's in-process activity map directly.
type workflowContext struct {
	engine *Engine
	ctx    tworkflow.Context
	id     string
	runID  string
}

func newWorkflowContext(e *Engine, ctx tworkflow.Context) *workflowContext {
	info := tworkflow.GetInfo(ctx)
	return &workflowContext{
		engine: e,
		ctx:    ctx,
		id:     info.WorkflowExecution.ID,
		runID:  info.WorkflowExecution.RunID,
	}
}

// Context returns context.Background(): Temporal workflow code must not use
// a standard Go context for cancellation-sensitive operations, so this
// exists only to satisfy callers that pass it straight through to
// session/model/tool code invoked from *activities*, not from the workflow
// itself.
func (w *workflowContext) Context() context.Context { return context.Background() }
func (w *workflowContext) WorkflowID() string        { return w.id }
func (w *workflowContext) RunID() string             { return w.runID }
func (w *workflowContext) Logger() telemetry.Logger   { return w.engine.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.engine.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.engine.tracer }
func (w *workflowContext) Now() time.Time             { return tworkflow.Now(w.ctx) }

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(context.Background(), req)
	if err != nil {
		return err
	}
	return fut.Get(context.Background(), result)
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	ao := tworkflow.ActivityOptions{TaskQueue: req.Queue}
	if req.Timeout > 0 {
		ao.StartToCloseTimeout = req.Timeout
	} else {
		ao.StartToCloseTimeout = time.Minute
	}
	if rp := convertActivityRetryPolicy(req.RetryPolicy); rp != nil {
		ao.RetryPolicy = rp
	}
	actCtx := tworkflow.WithActivityOptions(w.ctx, ao)
	return &future{ctx: actCtx, future: tworkflow.ExecuteActivity(actCtx, req.Name, req.Input)}, nil
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ctx: w.ctx, ch: tworkflow.GetSignalChannel(w.ctx, name)}
}

type future struct {
	ctx    tworkflow.Context
	future tworkflow.Future
}

func (f *future) Get(_ context.Context, result any) error {
	return f.future.Get(f.ctx, result)
}

func (f *future) IsReady() bool { return f.future.IsReady() }

type signalChannel struct {
	ctx tworkflow.Context
	ch  tworkflow.ReceiveChannel
}

func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}
