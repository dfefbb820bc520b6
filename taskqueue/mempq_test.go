package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAllGate struct{}

func (allowAllGate) Allow(string) (bool, bool) { return true, false }
func (allowAllGate) Report(string, bool)       {}

func TestEnqueueRejectsDuplicateNonTerminal(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "reason#1", "reason", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "wf-1", "reason#1", "reason", nil, EnqueueOptions{MaxAttempts: 1})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestClaimIsExclusivePerTask(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:add", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	claimed1, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:add"}, Max: 5}, allowAllGate{})
	require.NoError(t, err)
	require.Len(t, claimed1, 1)

	claimed2, err := s.Claim(ctx, ClaimRequest{WorkerID: "w2", ActivityTypes: []string{"tool:add"}, Max: 5}, allowAllGate{})
	require.NoError(t, err)
	assert.Empty(t, claimed2, "a claimed task must not be claimable by a second worker")
}

func TestHeartbeatExtendsVisibility(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:add", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	claimed, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:add"}, Max: 1}, allowAllGate{})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	err = s.Heartbeat(ctx, claimed[0].ID, "w1", time.Minute)
	require.NoError(t, err)

	err = s.Heartbeat(ctx, claimed[0].ID, "someone-else", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseLost)
}

func TestCompleteIsIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:add", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	claimed, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:add"}, Max: 1}, allowAllGate{})
	require.NoError(t, err)

	out1, err := s.Complete(ctx, claimed[0].ID, "w1", Outcome{Success: true, Result: map[string]any{"v": 8}}, time.Second, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out1.Status)

	out2, err := s.Complete(ctx, claimed[0].ID, "w1", Outcome{Success: true, Result: map[string]any{"v": 999}}, time.Second, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out2.Status, "second completion is a no-op")
}

func TestRetriableFailureReschedulesThenDLQs(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:flaky", nil, EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:flaky"}, Max: 1}, allowAllGate{})
	require.NoError(t, err)
	task1, err := s.Complete(ctx, claimed[0].ID, "w1", Outcome{Retriable: true, Err: "boom"}, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task1.Status, "first failure with attempts remaining reschedules")

	// Wait out the (1ms-base) backoff window so the rescheduled
	// attempt is visible again, then attempt it once more.
	time.Sleep(10 * time.Millisecond)

	// Second attempt: retriable but max_attempts (2) now exhausted -> DLQ.
	claimed2, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:flaky"}, Max: 1}, allowAllGate{})
	require.NoError(t, err)
	require.Len(t, claimed2, 1)
	task2, err := s.Complete(ctx, claimed2[0].ID, "w1", Outcome{Retriable: true, Err: "boom again"}, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusDead, task2.Status)
}

func TestDLQRequeueCreatesFreshTaskAndRemovesEntry(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:flaky", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	claimed, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:flaky"}, Max: 1}, allowAllGate{})
	require.NoError(t, err)
	_, err = s.Complete(ctx, claimed[0].ID, "w1", Outcome{Retriable: true, Err: "boom"}, time.Millisecond, time.Second)
	require.NoError(t, err)

	entries, err := s.DLQList(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fresh, err := s.DLQRequeue(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fresh.Status)
	assert.Equal(t, 0, fresh.Attempt)

	_, err = s.DLQRequeue(ctx, entries[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepReclaimsExpiredLeases(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:add", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	claimed, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:add"}, Max: 1}, allowAllGate{})
	require.NoError(t, err)

	n, err := s.Sweep(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := s.Get(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Empty(t, task.ClaimedBy)
}

func TestCancelMarksNonTerminalTasks(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "wf-1", "tool#1", "tool:add", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "wf-1", "tool#2", "tool:add", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, "wf-1", ""))

	claimed, err := s.Claim(ctx, ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"tool:add"}, Max: 10}, allowAllGate{})
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
