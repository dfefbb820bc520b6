package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-process Store backed by a map, guarded by a single
// mutex. Claim performs a linear scan + sort rather than a heap: task
// volumes handled by a single in-process engine are small enough that this
// is simpler and just as correct, and it keeps Sweep/Cancel/DLQ bookkeeping
// in one place instead of split across a heap and side tables.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	keys  map[ActivityKey]string // ActivityKey -> current non-terminal task ID
	dlq   map[string]*DLQEntry
}

// NewMemStore returns an in-process taskqueue.Store.
func NewMemStore() Store {
	return &memStore{
		tasks: make(map[string]*Task),
		keys:  make(map[ActivityKey]string),
		dlq:   make(map[string]*DLQEntry),
	}
}

func (s *memStore) Enqueue(_ context.Context, workflowID, activityID, activityType string, payload map[string]any, opts EnqueueOptions) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ActivityKey{WorkflowID: workflowID, ActivityID: activityID}
	if existingID, ok := s.keys[key]; ok {
		if existing, ok := s.tasks[existingID]; ok && !existing.Status.terminal() {
			return Task{}, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	scheduledAt := opts.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	t := &Task{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		ActivityID:     activityID,
		ActivityType:   activityType,
		Priority:       opts.Priority,
		Payload:        payload,
		ScheduledAt:    scheduledAt,
		VisibleAt:      scheduledAt,
		Status:         StatusPending,
		MaxAttempts:    maxAttempts,
		IdempotencyKey: opts.IdempotencyKey,
		BreakerKey:     opts.BreakerKey,
	}
	s.tasks[t.ID] = t
	s.keys[key] = t.ID
	return *t, nil
}

func (s *memStore) Claim(_ context.Context, req ClaimRequest, gate BreakerGate) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Max <= 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(req.ActivityTypes))
	for _, at := range req.ActivityTypes {
		wanted[at] = true
	}

	now := time.Now().UTC()
	candidates := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.Status != StatusPending {
			continue
		}
		if t.VisibleAt.After(now) {
			continue
		}
		if len(wanted) > 0 && !wanted[t.ActivityType] {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if !candidates[i].ScheduledAt.Equal(candidates[j].ScheduledAt) {
			return candidates[i].ScheduledAt.Before(candidates[j].ScheduledAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	claimed := make([]Task, 0, req.Max)
	probedKeys := make(map[string]bool)
	for _, t := range candidates {
		if len(claimed) >= req.Max {
			break
		}
		if t.BreakerKey != "" && gate != nil {
			allowed, probe := gate.Allow(t.BreakerKey)
			if !allowed {
				continue
			}
			if probe {
				if probedKeys[t.BreakerKey] {
					continue // at most one concurrent probe per key
				}
				probedKeys[t.BreakerKey] = true
			}
		}
		t.Status = StatusClaimed
		t.ClaimedBy = req.WorkerID
		t.ClaimedAt = now
		t.HeartbeatAt = now
		t.Attempt++
		// VisibleAt (lease expiry) is set by the caller via Heartbeat once the
		// activity's timeout is known; default to a short grace window here.
		t.VisibleAt = now.Add(30 * time.Second)
		claimed = append(claimed, *t)
	}
	return claimed, nil
}

func (s *memStore) Heartbeat(_ context.Context, taskID, workerID string, visibilityTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusClaimed || t.ClaimedBy != workerID {
		return ErrLeaseLost
	}
	now := time.Now().UTC()
	t.HeartbeatAt = now
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	t.VisibleAt = now.Add(visibilityTimeout)
	return nil
}

func (s *memStore) Complete(_ context.Context, taskID, workerID string, outcome Outcome, backoffBase, backoffCap time.Duration) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if t.Status.terminal() {
		// Idempotent: already terminal, no additional side effect.
		return *t, nil
	}
	if t.ClaimedBy != workerID {
		return Task{}, ErrLeaseLost
	}

	switch {
	case outcome.Success:
		t.Status = StatusCompleted
		t.LastError = ""
	case !outcome.Retriable:
		t.Status = StatusFailed
		t.LastError = outcome.Err
	case t.Attempt < t.MaxAttempts:
		t.Status = StatusPending
		t.LastError = outcome.Err
		t.ClaimedBy = ""
		t.VisibleAt = time.Now().UTC().Add(Backoff(t.Attempt, backoffBase, backoffCap))
	default:
		t.Status = StatusDead
		t.LastError = outcome.Err
		s.dlq[t.ID] = &DLQEntry{
			ID:             uuid.NewString(),
			OriginalTaskID: t.ID,
			WorkflowID:     t.WorkflowID,
			ActivityID:     t.ActivityID,
			ActivityType:   t.ActivityType,
			Input:          t.Payload,
			Attempts:       t.Attempt,
			LastError:      outcome.Err,
			ErrorHistory:   []string{outcome.Err},
			DeadAt:         time.Now().UTC(),
		}
	}
	return *t, nil
}

func (s *memStore) Cancel(_ context.Context, workflowID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if taskID != "" {
		t, ok := s.tasks[taskID]
		if !ok {
			return ErrNotFound
		}
		if !t.Status.terminal() {
			t.Status = StatusCancelled
		}
		return nil
	}
	for _, t := range s.tasks {
		if t.WorkflowID == workflowID && !t.Status.terminal() {
			t.Status = StatusCancelled
		}
	}
	return nil
}

func (s *memStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.tasks {
		if t.Status == StatusClaimed && t.VisibleAt.Before(now) {
			t.Status = StatusPending
			t.ClaimedBy = ""
			t.VisibleAt = now
			count++
		}
	}
	return count, nil
}

func (s *memStore) Get(_ context.Context, taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

func (s *memStore) DLQList(_ context.Context) ([]DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DLQEntry, 0, len(s.dlq))
	for _, e := range s.dlq {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadAt.Before(out[j].DeadAt) })
	return out, nil
}

func (s *memStore) DLQRequeue(_ context.Context, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.dlq[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	delete(s.dlq, id)

	now := time.Now().UTC()
	t := &Task{
		ID:           uuid.NewString(),
		WorkflowID:   entry.WorkflowID,
		ActivityID:   entry.ActivityID,
		ActivityType: entry.ActivityType,
		Payload:      entry.Input,
		ScheduledAt:  now,
		VisibleAt:    now,
		Status:       StatusPending,
		MaxAttempts:  entry.Attempts + 1,
	}
	s.tasks[t.ID] = t
	s.keys[t.Key()] = t.ID
	return *t, nil
}
