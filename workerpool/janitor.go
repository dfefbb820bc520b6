package workerpool

import (
	"context"
	"time"

	"turnengine/taskqueue"
	"turnengine/telemetry"
)

// Janitor periodically sweeps for stale workers (registry heartbeat older
// than S = WORKER_STALE_MULTIPLIER * HEARTBEAT_INTERVAL) and for expired
// task leases (taskqueue visibility timeout), per spec.md §4.4/§4.2. These
// are the only recovery path after a worker crash: once a task's lease
// expires, taskqueue.Store.Sweep returns it to pending regardless of
// whether the janitor has yet noticed the owning worker is stale.
type Janitor struct {
	registry     Registry
	queue        taskqueue.Store
	staleAfter   time.Duration
	sweepEvery   time.Duration
	logger       telemetry.Logger
}

// NewJanitor constructs a Janitor. staleAfter should be
// WORKER_STALE_MULTIPLIER * HEARTBEAT_INTERVAL_MS (default 3 * 5s = 15s).
func NewJanitor(registry Registry, queue taskqueue.Store, staleAfter, sweepEvery time.Duration, logger telemetry.Logger) *Janitor {
	if sweepEvery <= 0 {
		sweepEvery = time.Second
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Janitor{registry: registry, queue: queue, staleAfter: staleAfter, sweepEvery: sweepEvery, logger: logger}
}

// Run loops until ctx is cancelled, sweeping stale workers and expired
// leases on every tick.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Janitor) tick(ctx context.Context) {
	now := time.Now().UTC()
	if j.registry != nil {
		stale, err := j.registry.SweepStale(ctx, now, j.staleAfter)
		if err != nil {
			j.logger.Warn("worker staleness sweep failed", "error", err)
		} else if len(stale) > 0 {
			j.logger.Info("marked workers stale", "worker_ids", stale)
		}
	}
	if j.queue != nil {
		n, err := j.queue.Sweep(ctx, now)
		if err != nil {
			j.logger.Warn("task lease sweep failed", "error", err)
		} else if n > 0 {
			j.logger.Info("reclaimed expired leases", "count", n)
		}
	}
}
