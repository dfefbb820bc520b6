// Package taskqueue implements the durable priority queue of activity
// invocations described in spec.md §4.2 (C2): lease-based claiming,
// heartbeat extension, idempotent completion, retry with backoff, and a
// dead-letter queue for exhausted retries.
package taskqueue

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
	StatusCancelled Status = "cancelled"
)

// terminal reports whether a status admits no further transitions except
// DLQ requeue (which creates a fresh task row).
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusDead, StatusCancelled:
		return true
	default:
		return false
	}
}

// ActivityKey identifies an activity invocation within a workflow. Tasks are
// deduplicated on (WorkflowID, ActivityID): at most one claimed task and at
// most one non-dead terminal task may exist per key at a time (spec.md §3).
type ActivityKey struct {
	WorkflowID string
	ActivityID string
}

// Task is the queued, durable representation of a single activity
// invocation (spec.md §3).
type Task struct {
	ID             string
	WorkflowID     string
	ActivityID     string
	ActivityType   string
	Priority       int
	Payload        map[string]any
	ScheduledAt    time.Time
	VisibleAt      time.Time
	Status         Status
	ClaimedBy      string
	ClaimedAt      time.Time
	HeartbeatAt    time.Time
	Attempt        int
	MaxAttempts    int
	LastError      string
	IdempotencyKey string
	// BreakerKey identifies the dependency this task's activity type exercises
	// (e.g. "llm:anthropic", "tool:weather"), consulted by Claim against the
	// breaker.Registry (spec.md §4.3).
	BreakerKey string
}

// Key returns the ActivityKey for this task.
func (t Task) Key() ActivityKey {
	return ActivityKey{WorkflowID: t.WorkflowID, ActivityID: t.ActivityID}
}

// EnqueueOptions configures a single Enqueue call (spec.md §4.2).
type EnqueueOptions struct {
	Priority           int
	MaxAttempts        int
	VisibilityTimeout  time.Duration
	IdempotencyKey     string
	ScheduledAt        time.Time
	BreakerKey         string
}

// Outcome is the result passed to Complete: either a success with a result
// payload, or a failure classified as retriable or not (spec.md §4.2, §4.5).
type Outcome struct {
	Success   bool
	Result    map[string]any
	Err       string
	Retriable bool
}
