package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnengine/breaker"
	"turnengine/eventlog"
	"turnengine/session"
	"turnengine/taskqueue"
	"turnengine/workerpool"
)

type fakeSignalSink struct {
	delivered []SignalType
}

func (f *fakeSignalSink) Deliver(_ context.Context, _ string, signal SignalType, _ map[string]any) error {
	f.delivered = append(f.delivered, signal)
	return nil
}

func newTestSurface(t *testing.T) (*Surface, taskqueue.Store, breaker.Registry, workerpool.Registry, *fakeSignalSink) {
	t.Helper()
	bcast := eventlog.NewBroadcaster(16)
	events := eventlog.NewMemStore(bcast)
	sessions := session.NewMemStore(events, bcast)
	tasks := taskqueue.NewMemStore()
	breakers := breaker.NewRegistry(breaker.Settings{})
	workers := workerpool.NewMemRegistry()
	sink := &fakeSignalSink{}
	return NewSurface(sessions, tasks, breakers, workers, sink), tasks, breakers, workers, sink
}

func TestCancelCancelsTasksAndSignals(t *testing.T) {
	s, tasks, _, _, sink := newTestSurface(t)
	ctx := context.Background()
	_, err := tasks.Enqueue(ctx, "wf-1", "reason#1", "reason", nil, taskqueue.EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, "wf-1"))
	assert.Equal(t, []SignalType{SignalCancel}, sink.delivered)
}

func TestSignalRejectsUnknown(t *testing.T) {
	s, _, _, _, _ := newTestSurface(t)
	err := s.Signal(context.Background(), "wf-1", SignalType("bogus"), nil)
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestResetBreakerForcesClosed(t *testing.T) {
	s, _, breakers, _, _ := newTestSurface(t)
	for i := 0; i < 10; i++ {
		breakers.Allow("llm:x")
		breakers.Report("llm:x", false)
	}
	s.ResetBreaker("llm:x")
	assert.Equal(t, breaker.StateClosed, breakers.State("llm:x"))
}

func TestDrainWorkerMarksDraining(t *testing.T) {
	s, _, _, workers, _ := newTestSurface(t)
	ctx := context.Background()
	require.NoError(t, workers.Register(ctx, workerpool.WorkerRecord{ID: "w1", StartedAt: time.Now().UTC()}))

	require.NoError(t, s.DrainWorker(ctx, "w1"))

	rec, err := workers.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, workerpool.StateDraining, rec.Status)
}
