package taskqueue_test

import (
	"context"
	"testing"
	"time"

	mongostore "turnengine/mongostore/taskqueue"
	"turnengine/mongostore/mongotest"

	"turnengine/taskqueue"
)

type alwaysOpenGate struct{}

func (alwaysOpenGate) Allow(string) (bool, bool) { return true, false }
func (alwaysOpenGate) Report(string, bool)       {}

func TestEnqueueClaimComplete(t *testing.T) {
	db := mongotest.Database(t)
	ctx := context.Background()

	store, err := mongostore.New(ctx, mongostore.Options{Client: db.Client(), Database: db.Name()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	task, err := store.Enqueue(ctx, "wf-1", "act-1", "reason", map[string]any{"x": 1}, taskqueue.EnqueueOptions{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if task.Status != taskqueue.StatusPending {
		t.Fatalf("task.Status = %v, want pending", task.Status)
	}

	if _, err := store.Enqueue(ctx, "wf-1", "act-1", "reason", nil, taskqueue.EnqueueOptions{}); err != taskqueue.ErrDuplicate {
		t.Fatalf("duplicate enqueue err = %v, want ErrDuplicate", err)
	}

	claimed, err := store.Claim(ctx, taskqueue.ClaimRequest{WorkerID: "w1", ActivityTypes: []string{"reason"}, Max: 5}, alwaysOpenGate{})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("len(claimed) = %d, want 1", len(claimed))
	}
	if claimed[0].ClaimedBy != "w1" {
		t.Fatalf("claimed[0].ClaimedBy = %q, want w1", claimed[0].ClaimedBy)
	}

	if err := store.Heartbeat(ctx, claimed[0].ID, "w1", 10*time.Second); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	done, err := store.Complete(ctx, claimed[0].ID, "w1", taskqueue.Outcome{Success: true}, time.Second, time.Minute)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != taskqueue.StatusCompleted {
		t.Fatalf("done.Status = %v, want completed", done.Status)
	}

	// Idempotent: completing again returns the same terminal outcome.
	again, err := store.Complete(ctx, claimed[0].ID, "w1", taskqueue.Outcome{Success: false, Err: "ignored"}, time.Second, time.Minute)
	if err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if again.Status != taskqueue.StatusCompleted {
		t.Fatalf("again.Status = %v, want completed", again.Status)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	db := mongotest.Database(t)
	ctx := context.Background()

	store, err := mongostore.New(ctx, mongostore.Options{Client: db.Client(), Database: db.Name()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Enqueue(ctx, "wf-2", "act-2", "tool", nil, taskqueue.EnqueueOptions{MaxAttempts: 2})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claim := func() taskqueue.Task {
		claimed, err := store.Claim(ctx, taskqueue.ClaimRequest{WorkerID: "w", ActivityTypes: []string{"tool"}, Max: 1}, nil)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if len(claimed) != 1 {
			t.Fatalf("len(claimed) = %d, want 1", len(claimed))
		}
		return claimed[0]
	}

	first := claim()
	retried, err := store.Complete(ctx, first.ID, "w", taskqueue.Outcome{Retriable: true, Err: "boom"}, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("complete first: %v", err)
	}
	if retried.Status != taskqueue.StatusPending {
		t.Fatalf("retried.Status = %v, want pending", retried.Status)
	}

	time.Sleep(5 * time.Millisecond)
	second := claim()
	dead, err := store.Complete(ctx, second.ID, "w", taskqueue.Outcome{Retriable: true, Err: "boom again"}, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("complete second: %v", err)
	}
	if dead.Status != taskqueue.StatusDead {
		t.Fatalf("dead.Status = %v, want dead", dead.Status)
	}

	entries, err := store.DLQList(ctx)
	if err != nil {
		t.Fatalf("dlq list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	requeued, err := store.DLQRequeue(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("dlq requeue: %v", err)
	}
	if requeued.Status != taskqueue.StatusPending {
		t.Fatalf("requeued.Status = %v, want pending", requeued.Status)
	}
}

func TestSweepReclaimsExpiredClaims(t *testing.T) {
	db := mongotest.Database(t)
	ctx := context.Background()

	store, err := mongostore.New(ctx, mongostore.Options{Client: db.Client(), Database: db.Name()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := store.Enqueue(ctx, "wf-3", "act-3", "reason", nil, taskqueue.EnqueueOptions{MaxAttempts: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := store.Claim(ctx, taskqueue.ClaimRequest{WorkerID: "w", ActivityTypes: []string{"reason"}, Max: 1}, nil)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v, %+v", err, claimed)
	}

	n, err := store.Sweep(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("sweep reclaimed %d, want 1", n)
	}

	task, err := store.Get(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != taskqueue.StatusPending {
		t.Fatalf("task.Status = %v, want pending after sweep", task.Status)
	}
}
