// Package workerpool implements the long-lived worker process described in
// spec.md §4.4 (C4): registration, a heartbeat loop, a claim loop with
// concurrency admission, and graceful draining. Grounded on the
// worker-pool/state-machine shape in
// other_examples/65ffbf5e_maumercado-task-queue-go's internal/worker.Pool
// (idle/busy/paused/shutting_down states, semaphore-based admission), wired
// against this module's own taskqueue.Store and activity.Runtime instead of
// a Redis-specific queue.
package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"turnengine/activity"
	"turnengine/taskqueue"
	"turnengine/telemetry"
)

// State is the worker's coarse lifecycle state (spec.md §3).
type State string

const (
	StateActive   State = "active"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
	StateStale    State = "stale"
)

// Registration describes a worker offering capacity (spec.md §3).
type Registration struct {
	ID                string
	Group             string
	ActivityTypes     []string
	MaxConcurrency    int
	Hostname          string
	Version           string
	// PerTypeConcurrency caps in-flight tasks per activity type (e.g. at most
	// N concurrent LLM calls) so a hot tool cannot starve reason activities,
	// per spec.md §4.4.
	PerTypeConcurrency map[string]int
}

// Pool is a single worker process. It runs two concurrent loops
// (heartbeat, claim) until Drain/Stop completes. It holds no Registry: it
// writes no registration row, and its heartbeat loop records the time only
// in memory.
type Pool struct {
	reg     Registration
	queue   taskqueue.Store
	gate    taskqueue.BreakerGate
	runtime *activity.Runtime
	logger  telemetry.Logger

	heartbeatInterval time.Duration
	visibilityTimeout time.Duration

	mu             sync.RWMutex
	state          State
	acceptingTasks bool
	currentLoad    int
	lastHeartbeat  time.Time
	startedAt      time.Time

	typeSem map[string]chan struct{}
	wg      sync.WaitGroup
	stop    chan struct{}
	stopped chan struct{}
}

// NewPool constructs a worker pool. If reg.ID is empty, a random id is
// generated, mirroring the teacher reference's worker-N naming idiom.
func NewPool(reg Registration, queue taskqueue.Store, gate taskqueue.BreakerGate, runtime *activity.Runtime, heartbeatInterval, visibilityTimeout time.Duration, logger telemetry.Logger) *Pool {
	if reg.ID == "" {
		reg.ID = "worker-" + uuid.NewString()[:8]
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	typeSem := make(map[string]chan struct{}, len(reg.PerTypeConcurrency))
	for activityType, n := range reg.PerTypeConcurrency {
		if n > 0 {
			typeSem[activityType] = make(chan struct{}, n)
		}
	}
	return &Pool{
		reg:               reg,
		queue:             queue,
		gate:              gate,
		runtime:           runtime,
		logger:            logger.With("worker_id", reg.ID),
		heartbeatInterval: heartbeatInterval,
		visibilityTimeout: visibilityTimeout,
		state:             StateActive,
		acceptingTasks:    true,
		startedAt:         time.Now().UTC(),
		typeSem:           typeSem,
		stop:              make(chan struct{}),
		stopped:           make(chan struct{}),
	}
}

// ID returns the worker's identifier.
func (p *Pool) ID() string { return p.reg.ID }

// State returns the worker's current lifecycle state.
func (p *Pool) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// CurrentLoad returns the number of tasks currently executing on this worker.
func (p *Pool) CurrentLoad() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentLoad
}

// Start launches the heartbeat and claim loops. It returns immediately; call
// Wait to block until the pool has fully stopped.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(2)
	go p.heartbeatLoop(ctx)
	go p.claimLoop(ctx)
}

// Wait blocks until both loops have exited (after Drain/Stop completes).
func (p *Pool) Wait() {
	p.wg.Wait()
	close(p.stopped)
}

// Drain stops the claim loop from picking up new work while letting
// in-flight tasks finish; heartbeats continue until current load reaches
// zero (spec.md §4.4).
func (p *Pool) Drain() {
	p.mu.Lock()
	p.acceptingTasks = false
	p.state = StateDraining
	p.mu.Unlock()
}

// Stop signals both loops to exit immediately without waiting for drain.
func (p *Pool) Stop() {
	close(p.stop)
}

func (p *Pool) heartbeatLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.lastHeartbeat = time.Now().UTC()
			load := p.currentLoad
			p.mu.Unlock()
			if load == 0 {
				p.mu.Lock()
				stopped := false
				if p.state == StateDraining {
					p.state = StateStopped
					stopped = true
				}
				p.mu.Unlock()
				if stopped {
					return
				}
			}
		}
	}
}

func (p *Pool) claimLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		p.mu.RLock()
		accepting := p.acceptingTasks
		available := p.reg.MaxConcurrency - p.currentLoad
		p.mu.RUnlock()

		if !accepting {
			if p.State() == StateStopped {
				return
			}
			time.Sleep(p.heartbeatInterval)
			continue
		}
		if available <= 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		tasks, err := p.queue.Claim(ctx, taskqueue.ClaimRequest{
			WorkerID:      p.reg.ID,
			ActivityTypes: p.reg.ActivityTypes,
			Max:           available,
		}, p.gate)
		if err != nil {
			p.logger.Warn("claim failed", "error", err)
			time.Sleep(p.heartbeatInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		for _, task := range tasks {
			p.dispatch(ctx, task)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context, task taskqueue.Task) {
	release := p.acquireTypeSlot(task.ActivityType)
	p.mu.Lock()
	p.currentLoad++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.currentLoad--
			p.mu.Unlock()
			if release != nil {
				release()
			}
		}()
		p.runtime.Execute(ctx, task, p.reg.ID, p.visibilityTimeout)
	}()
}

func (p *Pool) acquireTypeSlot(activityType string) func() {
	sem, ok := p.typeSem[activityType]
	if !ok {
		return nil
	}
	sem <- struct{}{}
	return func() { <-sem }
}
