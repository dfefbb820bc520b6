package taskqueue

import (
	"context"
	"time"
)

// BreakerGate is the narrow view of breaker.Registry the queue needs: can a
// candidate task whose activity exercises the given key be claimed right
// now? Kept as a local interface rather than importing breaker directly;
// breaker.Registry satisfies it. Outcomes reach the breaker through Report
// calls made by activity.Runtime; Complete does not report them.
type BreakerGate interface {
	// Allow reports whether a claim attempt for key should proceed. When it
	// returns true with probe=true, the caller is the single admitted
	// half-open probe for key and must report the outcome via Report.
	Allow(key string) (allowed bool, probe bool)
	// Report records the outcome of a probe or a normal attempt against key.
	Report(key string, success bool)
}

// ClaimRequest configures a single Claim call (spec.md §4.2).
type ClaimRequest struct {
	WorkerID      string
	ActivityTypes []string
	Max           int
}

// Store is the durable Task Queue contract. Implementations: mempq (in
// process, used by the in-process engine and tests) and
// mongostore/taskqueue (Mongo-backed, durable across restarts).
type Store interface {
	// Enqueue adds a new task. Returns ErrDuplicate if a non-terminal task
	// already exists for (workflowID, activityID).
	Enqueue(ctx context.Context, workflowID, activityID, activityType string, payload map[string]any, opts EnqueueOptions) (Task, error)

	// Claim selects up to req.Max pending, visible, non-breaker-blocked tasks
	// matching req.ActivityTypes, ordered by (priority desc, scheduled_at asc,
	// id asc), and marks them claimed by req.WorkerID. Two concurrent callers
	// never receive the same task (spec.md §4.2).
	Claim(ctx context.Context, req ClaimRequest, gate BreakerGate) ([]Task, error)

	// Heartbeat extends the visibility timeout for taskID if it is still
	// claimed by workerID. Returns ErrLeaseLost otherwise.
	Heartbeat(ctx context.Context, taskID, workerID string, visibilityTimeout time.Duration) error

	// Complete records the outcome for taskID. Idempotent on the task's
	// ActivityKey: if that key is already terminal, returns the existing
	// outcome without any additional side effect.
	Complete(ctx context.Context, taskID, workerID string, outcome Outcome, backoffBase, backoffCap time.Duration) (Task, error)

	// Cancel marks a task (by ID) or every non-terminal task for a workflow
	// (by workflowID, taskID empty) as cancelled.
	Cancel(ctx context.Context, workflowID, taskID string) error

	// Sweep reclaims claimed tasks whose VisibleAt has passed: status resets
	// to pending, ClaimedBy is cleared. Returns the number reclaimed. Run
	// periodically by a background janitor (spec.md §4.2).
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Get returns a task by ID.
	Get(ctx context.Context, taskID string) (Task, error)

	// DLQList returns entries currently in the dead-letter queue.
	DLQList(ctx context.Context) ([]DLQEntry, error)
	// DLQRequeue creates a fresh task (attempt=0) from DLQ entry id and
	// removes the entry. Returns ErrNotFound if id does not exist.
	DLQRequeue(ctx context.Context, id string) (Task, error)
}

// DLQEntry is a task that exhausted retries (spec.md §3).
type DLQEntry struct {
	ID             string
	OriginalTaskID string
	WorkflowID     string
	ActivityID     string
	ActivityType   string
	Input          map[string]any
	Attempts       int
	LastError      string
	ErrorHistory   []string
	DeadAt         time.Time
	RequeuedAt     *time.Time
	RequeueCount   int
}
