package taskqueue

import "errors"

var (
	// ErrDuplicate is returned by Enqueue when a non-terminal task already
	// exists for (workflow_id, activity_id).
	ErrDuplicate = errors.New("taskqueue: duplicate activity")
	// ErrLeaseLost is returned by Heartbeat when the task is no longer claimed
	// by the calling worker (its visibility timeout expired and another
	// worker claimed it, or it was cancelled/completed).
	ErrLeaseLost = errors.New("taskqueue: lease lost")
	// ErrNotFound is returned when a task or DLQ entry does not exist.
	ErrNotFound = errors.New("taskqueue: not found")
	// ErrCircuitOpen names the breaker-open condition. Neither Store
	// implementation returns it: Claim skips a candidate whose breaker is
	// open and reports no error.
	ErrCircuitOpen = errors.New("taskqueue: circuit open")
)
