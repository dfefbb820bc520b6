// Package taskqueue provides a MongoDB-backed taskqueue.Store (C2), durable
// across process restarts. Grounded on the same teacher shape as
// mongostore/eventlog (thin struct over *mongo.Client, Options/New/
// ensureIndexes), adapted to the queue's claim/heartbeat/complete/DLQ
// operations: claiming uses one optimistic FindOneAndUpdate per candidate
// task (status still pending) rather than a batch update, so two workers
// racing for the same row never both win it.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/google/uuid"

	"turnengine/taskqueue"
)

const (
	defaultTasksCollection = "tasks"
	defaultDLQCollection   = "task_dlq"
	defaultClaimWindow     = 30 * time.Second
	defaultOpTimeout       = 5 * time.Second
)

// Options configures the Mongo-backed taskqueue.Store.
type Options struct {
	Client          *mongo.Client
	Database        string
	TasksCollection string
	DLQCollection   string
	Timeout         time.Duration
}

// Store implements taskqueue.Store against MongoDB collections.
type Store struct {
	tasks   *mongo.Collection
	dlq     *mongo.Collection
	timeout time.Duration
}

type taskDoc struct {
	ID             string         `bson:"_id"`
	WorkflowID     string         `bson:"workflow_id"`
	ActivityID     string         `bson:"activity_id"`
	ActivityType   string         `bson:"activity_type"`
	Priority       int            `bson:"priority"`
	Payload        bson.M         `bson:"payload"`
	ScheduledAt    time.Time      `bson:"scheduled_at"`
	VisibleAt      time.Time      `bson:"visible_at"`
	Status         string         `bson:"status"`
	ClaimedBy      string         `bson:"claimed_by,omitempty"`
	ClaimedAt      time.Time      `bson:"claimed_at,omitempty"`
	HeartbeatAt    time.Time      `bson:"heartbeat_at,omitempty"`
	Attempt        int            `bson:"attempt"`
	MaxAttempts    int            `bson:"max_attempts"`
	LastError      string         `bson:"last_error,omitempty"`
	IdempotencyKey string         `bson:"idempotency_key,omitempty"`
	BreakerKey     string         `bson:"breaker_key,omitempty"`
}

type dlqDoc struct {
	ID             string    `bson:"_id"`
	OriginalTaskID string    `bson:"original_task_id"`
	WorkflowID     string    `bson:"workflow_id"`
	ActivityID     string    `bson:"activity_id"`
	ActivityType   string    `bson:"activity_type"`
	Input          bson.M    `bson:"input"`
	Attempts       int       `bson:"attempts"`
	LastError      string    `bson:"last_error"`
	ErrorHistory   []string  `bson:"error_history"`
	DeadAt         time.Time `bson:"dead_at"`
	RequeuedAt     *time.Time `bson:"requeued_at,omitempty"`
	RequeueCount   int       `bson:"requeue_count"`
}

// New constructs a Store, ensuring the partial-unique activity-key index
// (unique only while the task is non-terminal, mirroring memStore.keys) and
// the claim-ordering index exist.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore/taskqueue: Client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore/taskqueue: Database is required")
	}
	tasksCollName := opts.TasksCollection
	if tasksCollName == "" {
		tasksCollName = defaultTasksCollection
	}
	dlqCollName := opts.DLQCollection
	if dlqCollName == "" {
		dlqCollName = defaultDLQCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	tasks := opts.Client.Database(opts.Database).Collection(tasksCollName)
	dlq := opts.Client.Database(opts.Database).Collection(dlqCollName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(idxCtx, tasks); err != nil {
		return nil, fmt.Errorf("mongostore/taskqueue: ensure indexes: %w", err)
	}

	return &Store{tasks: tasks, dlq: dlq, timeout: timeout}, nil
}

func ensureIndexes(ctx context.Context, tasks *mongo.Collection) error {
	_, err := tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "activity_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"status": bson.M{"$nin": []string{
					string(taskqueue.StatusCompleted),
					string(taskqueue.StatusDead),
					string(taskqueue.StatusCancelled),
				}},
			}),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "activity_type", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "scheduled_at", Value: 1},
			},
		},
	})
	return err
}

func (s *Store) Enqueue(ctx context.Context, workflowID, activityID, activityType string, payload map[string]any, opts taskqueue.EnqueueOptions) (taskqueue.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	scheduledAt := opts.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	doc := taskDoc{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		ActivityID:     activityID,
		ActivityType:   activityType,
		Priority:       opts.Priority,
		Payload:        bson.M(payload),
		ScheduledAt:    scheduledAt,
		VisibleAt:      scheduledAt,
		Status:         string(taskqueue.StatusPending),
		MaxAttempts:    maxAttempts,
		IdempotencyKey: opts.IdempotencyKey,
		BreakerKey:     opts.BreakerKey,
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return taskqueue.Task{}, taskqueue.ErrDuplicate
		}
		return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: insert task: %w", err)
	}
	return toTask(doc), nil
}

func (s *Store) Claim(ctx context.Context, req taskqueue.ClaimRequest, gate taskqueue.BreakerGate) ([]taskqueue.Task, error) {
	if req.Max <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	filter := bson.M{
		"status":     string(taskqueue.StatusPending),
		"visible_at": bson.M{"$lte": now},
	}
	if len(req.ActivityTypes) > 0 {
		filter["activity_type"] = bson.M{"$in": req.ActivityTypes}
	}

	// Candidate window is larger than Max: some candidates will be skipped
	// on a closed breaker or lost to a racing worker.
	cur, err := s.tasks.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "scheduled_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(req.Max*4+16)))
	if err != nil {
		return nil, fmt.Errorf("mongostore/taskqueue: find candidates: %w", err)
	}
	var candidates []taskDoc
	if err := cur.All(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("mongostore/taskqueue: decode candidates: %w", err)
	}

	claimed := make([]taskqueue.Task, 0, req.Max)
	probedKeys := make(map[string]bool)
	for _, c := range candidates {
		if len(claimed) >= req.Max {
			break
		}
		if c.BreakerKey != "" && gate != nil {
			allowed, probe := gate.Allow(c.BreakerKey)
			if !allowed {
				continue
			}
			if probe {
				if probedKeys[c.BreakerKey] {
					continue
				}
				probedKeys[c.BreakerKey] = true
			}
		}

		var updated taskDoc
		err := s.tasks.FindOneAndUpdate(
			ctx,
			bson.M{"_id": c.ID, "status": string(taskqueue.StatusPending)},
			bson.M{
				"$set": bson.M{
					"status":       string(taskqueue.StatusClaimed),
					"claimed_by":   req.WorkerID,
					"claimed_at":   now,
					"heartbeat_at": now,
					"visible_at":   now.Add(defaultClaimWindow),
				},
				"$inc": bson.M{"attempt": 1},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue // lost the race to another worker
			}
			return nil, fmt.Errorf("mongostore/taskqueue: claim task: %w", err)
		}
		claimed = append(claimed, toTask(updated))
	}
	return claimed, nil
}

func (s *Store) Heartbeat(ctx context.Context, taskID, workerID string, visibilityTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if visibilityTimeout <= 0 {
		visibilityTimeout = defaultClaimWindow
	}
	now := time.Now().UTC()
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": taskID, "status": string(taskqueue.StatusClaimed), "claimed_by": workerID},
		bson.M{"$set": bson.M{"heartbeat_at": now, "visible_at": now.Add(visibilityTimeout)}},
	)
	if err != nil {
		return fmt.Errorf("mongostore/taskqueue: heartbeat: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, taskID); err != nil {
			return taskqueue.ErrNotFound
		}
		return taskqueue.ErrLeaseLost
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, taskID, workerID string, outcome taskqueue.Outcome, backoffBase, backoffCap time.Duration) (taskqueue.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc taskDoc
	if err := s.tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return taskqueue.Task{}, taskqueue.ErrNotFound
		}
		return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: find task: %w", err)
	}
	if isTerminal(taskqueue.Status(doc.Status)) {
		return toTask(doc), nil
	}
	if doc.ClaimedBy != workerID {
		return taskqueue.Task{}, taskqueue.ErrLeaseLost
	}

	update := bson.M{}
	switch {
	case outcome.Success:
		update["status"] = string(taskqueue.StatusCompleted)
		update["last_error"] = ""
	case !outcome.Retriable:
		update["status"] = string(taskqueue.StatusFailed)
		update["last_error"] = outcome.Err
	case doc.Attempt < doc.MaxAttempts:
		update["status"] = string(taskqueue.StatusPending)
		update["last_error"] = outcome.Err
		update["claimed_by"] = ""
		update["visible_at"] = time.Now().UTC().Add(taskqueue.Backoff(doc.Attempt, backoffBase, backoffCap))
	default:
		update["status"] = string(taskqueue.StatusDead)
		update["last_error"] = outcome.Err
	}

	res := s.tasks.FindOneAndUpdate(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": update},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var updated taskDoc
	if err := res.Decode(&updated); err != nil {
		return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: apply outcome: %w", err)
	}

	if updated.Status == string(taskqueue.StatusDead) {
		entry := dlqDoc{
			ID:             uuid.NewString(),
			OriginalTaskID: updated.ID,
			WorkflowID:     updated.WorkflowID,
			ActivityID:     updated.ActivityID,
			ActivityType:   updated.ActivityType,
			Input:          updated.Payload,
			Attempts:       updated.Attempt,
			LastError:      outcome.Err,
			ErrorHistory:   []string{outcome.Err},
			DeadAt:         time.Now().UTC(),
		}
		if _, err := s.dlq.InsertOne(ctx, entry); err != nil {
			return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: insert dlq entry: %w", err)
		}
	}
	return toTask(updated), nil
}

func (s *Store) Cancel(ctx context.Context, workflowID, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	nonTerminal := bson.M{"$nin": []string{
		string(taskqueue.StatusCompleted),
		string(taskqueue.StatusDead),
		string(taskqueue.StatusCancelled),
	}}
	if taskID != "" {
		res, err := s.tasks.UpdateOne(ctx,
			bson.M{"_id": taskID, "status": nonTerminal},
			bson.M{"$set": bson.M{"status": string(taskqueue.StatusCancelled)}},
		)
		if err != nil {
			return fmt.Errorf("mongostore/taskqueue: cancel task: %w", err)
		}
		if res.MatchedCount == 0 {
			if _, err := s.Get(ctx, taskID); err != nil {
				return taskqueue.ErrNotFound
			}
		}
		return nil
	}
	_, err := s.tasks.UpdateMany(ctx,
		bson.M{"workflow_id": workflowID, "status": nonTerminal},
		bson.M{"$set": bson.M{"status": string(taskqueue.StatusCancelled)}},
	)
	if err != nil {
		return fmt.Errorf("mongostore/taskqueue: cancel workflow tasks: %w", err)
	}
	return nil
}

func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.tasks.UpdateMany(ctx,
		bson.M{"status": string(taskqueue.StatusClaimed), "visible_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": string(taskqueue.StatusPending), "claimed_by": "", "visible_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("mongostore/taskqueue: sweep: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) Get(ctx context.Context, taskID string) (taskqueue.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc taskDoc
	if err := s.tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return taskqueue.Task{}, taskqueue.ErrNotFound
		}
		return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: get task: %w", err)
	}
	return toTask(doc), nil
}

func (s *Store) DLQList(ctx context.Context) ([]taskqueue.DLQEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.dlq.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "dead_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore/taskqueue: find dlq: %w", err)
	}
	defer cur.Close(ctx)
	var docs []dlqDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore/taskqueue: decode dlq: %w", err)
	}
	out := make([]taskqueue.DLQEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, taskqueue.DLQEntry{
			ID:             d.ID,
			OriginalTaskID: d.OriginalTaskID,
			WorkflowID:     d.WorkflowID,
			ActivityID:     d.ActivityID,
			ActivityType:   d.ActivityType,
			Input:          map[string]any(d.Input),
			Attempts:       d.Attempts,
			LastError:      d.LastError,
			ErrorHistory:   d.ErrorHistory,
			DeadAt:         d.DeadAt,
			RequeuedAt:     d.RequeuedAt,
			RequeueCount:   d.RequeueCount,
		})
	}
	return out, nil
}

func (s *Store) DLQRequeue(ctx context.Context, id string) (taskqueue.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var entry dlqDoc
	if err := s.dlq.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return taskqueue.Task{}, taskqueue.ErrNotFound
		}
		return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: find dlq entry: %w", err)
	}

	now := time.Now().UTC()
	doc := taskDoc{
		ID:           uuid.NewString(),
		WorkflowID:   entry.WorkflowID,
		ActivityID:   entry.ActivityID,
		ActivityType: entry.ActivityType,
		Payload:      entry.Input,
		ScheduledAt:  now,
		VisibleAt:    now,
		Status:       string(taskqueue.StatusPending),
		MaxAttempts:  entry.Attempts + 1,
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		return taskqueue.Task{}, fmt.Errorf("mongostore/taskqueue: requeue task: %w", err)
	}
	return toTask(doc), nil
}

// isTerminal mirrors taskqueue.Status.terminal(), unexported in that
// package: completed/dead/cancelled admit no further transitions except a
// DLQ requeue, which creates a fresh task row rather than mutating this one.
func isTerminal(s taskqueue.Status) bool {
	switch s {
	case taskqueue.StatusCompleted, taskqueue.StatusDead, taskqueue.StatusCancelled:
		return true
	default:
		return false
	}
}

func toTask(d taskDoc) taskqueue.Task {
	return taskqueue.Task{
		ID:             d.ID,
		WorkflowID:     d.WorkflowID,
		ActivityID:     d.ActivityID,
		ActivityType:   d.ActivityType,
		Priority:       d.Priority,
		Payload:        map[string]any(d.Payload),
		ScheduledAt:    d.ScheduledAt,
		VisibleAt:      d.VisibleAt,
		Status:         taskqueue.Status(d.Status),
		ClaimedBy:      d.ClaimedBy,
		ClaimedAt:      d.ClaimedAt,
		HeartbeatAt:    d.HeartbeatAt,
		Attempt:        d.Attempt,
		MaxAttempts:    d.MaxAttempts,
		LastError:      d.LastError,
		IdempotencyKey: d.IdempotencyKey,
		BreakerKey:     d.BreakerKey,
	}
}
