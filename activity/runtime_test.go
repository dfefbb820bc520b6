package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnengine/eventlog"
	"turnengine/taskqueue"
)

func newTestRuntime(t *testing.T, reg *Registry) (*Runtime, taskqueue.Store, eventlog.Store) {
	t.Helper()
	queue := taskqueue.NewMemStore()
	bcast := eventlog.NewBroadcaster(16)
	events := eventlog.NewMemStore(bcast)
	rt := NewRuntime(reg, queue, events, nil, time.Millisecond, 10*time.Millisecond, 50*time.Millisecond, nil)
	return rt, queue, events
}

func enqueueTask(t *testing.T, queue taskqueue.Store, activityType string) taskqueue.Task {
	t.Helper()
	task, err := queue.Enqueue(context.Background(), "wf-1", "act-1", activityType, map[string]any{"session_id": "sess-1"}, taskqueue.EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)
	claimed, err := queue.Claim(context.Background(), taskqueue.ClaimRequest{WorkerID: "w1", ActivityTypes: []string{activityType}, Max: 1}, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	_ = task
	return claimed[0]
}

func TestRuntimeExecuteSuccessCompletesTask(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tool:add", func(_ context.Context, in map[string]any) (map[string]any, error) {
		return map[string]any{"sum": 3}, nil
	}, 10*time.Millisecond)
	rt, queue, events := newTestRuntime(t, reg)

	task := enqueueTask(t, queue, "tool:add")
	rt.Execute(context.Background(), task, "w1", 100*time.Millisecond)

	got, err := queue.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusCompleted, got.Status)

	evs, err := events.Range(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, eventlog.TypeToolCallStarted, evs[0].Type)
	assert.Equal(t, eventlog.TypeToolCallCompleted, evs[1].Type)
	assert.Equal(t, true, evs[1].Payload["success"])
}

func TestRuntimeExecuteUnknownActivityTypeFailsNonRetriable(t *testing.T) {
	reg := NewRegistry()
	rt, queue, _ := newTestRuntime(t, reg)

	task := enqueueTask(t, queue, "tool:missing")
	rt.Execute(context.Background(), task, "w1", 100*time.Millisecond)

	got, err := queue.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusFailed, got.Status)
}

func TestRuntimeExecuteTimeoutIsRetriable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tool:slow", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 5*time.Millisecond)
	rt, queue, _ := newTestRuntime(t, reg)

	task := enqueueTask(t, queue, "tool:slow")
	rt.Execute(context.Background(), task, "w1", 200*time.Millisecond)

	got, err := queue.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempt)
}

func TestRuntimeExecuteDependencyFaultReportsBreaker(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tool:flaky", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, NewDependencyFault(errors.New("boom"))
	}, 10*time.Millisecond)

	queue := taskqueue.NewMemStore()
	bcast := eventlog.NewBroadcaster(16)
	events := eventlog.NewMemStore(bcast)
	gate := &fakeGate{}
	rt := NewRuntime(reg, queue, events, gate, time.Millisecond, 10*time.Millisecond, 50*time.Millisecond, nil)

	task, err := queue.Enqueue(context.Background(), "wf-1", "act-1", "tool:flaky", map[string]any{"session_id": "sess-1"}, taskqueue.EnqueueOptions{MaxAttempts: 1, BreakerKey: "tool:flaky"})
	require.NoError(t, err)
	claimed, err := queue.Claim(context.Background(), taskqueue.ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:flaky"}, Max: 1}, gate)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	rt.Execute(context.Background(), claimed[0], "w1", 100*time.Millisecond)

	require.Len(t, gate.reports, 1)
	assert.False(t, gate.reports[0])
}

type fakeGate struct {
	reports []bool
}

func (g *fakeGate) Allow(string) (bool, bool) { return true, false }
func (g *fakeGate) Report(_ string, success bool) {
	g.reports = append(g.reports, success)
}
