// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/taibuivan/rensai/internal/core/chapter"
	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/config"
	"github.com/taibuivan/rensai/internal/platform/constants"
)

// HandlerFunc executes one sync job for a loaded source link. The
// commitCheck must be passed through to every transaction the handler
// commits.
type HandlerFunc func(ctx context.Context, link *series.SeriesSource, commitCheck chapter.CommitCheck) error

// WorkerPool drains the queue with a bounded set of workers.
//
// # Concurrency Discipline
//
// Global parallelism is the worker count. Per upstream source, a token
// bucket rate limiter spaces requests out and the circuit breaker stops
// probing a source that keeps failing. Per sync target, exclusivity comes
// from the queue's idempotency keys plus the advisory lock inside the
// write transaction; the pool itself never tracks targets.
type WorkerPool struct {
	queue    Queue
	sources  series.SourceRepository
	breakers *BreakerSet
	handlers map[SyncType]HandlerFunc
	logger   *slog.Logger

	workerCount int
	maxAttempts int

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	perSource rate.Limit
	burst     int

	// typeSlots caps concurrent jobs per sync type; sourceSlots caps
	// concurrent jobs per upstream source. Both are counting semaphores.
	typeSlots map[SyncType]chan struct{}

	slotMu       sync.Mutex
	sourceSlots  map[string]chan struct{}
	maxPerSource int
}

// NewWorkerPool wires the worker pool from configuration.
func NewWorkerPool(
	cfg *config.Config,
	q Queue,
	sources series.SourceRepository,
	breakers *BreakerSet,
	handlers map[SyncType]HandlerFunc,
	logger *slog.Logger,
) *WorkerPool {
	typeSlots := make(map[SyncType]chan struct{})
	for _, syncType := range []SyncType{TypeFull, TypeIncremental} {
		typeSlots[syncType] = make(chan struct{}, cfg.MaxPerQueue)
	}

	return &WorkerPool{
		queue:        q,
		sources:      sources,
		breakers:     breakers,
		handlers:     handlers,
		logger:       logger,
		workerCount:  cfg.WorkerCount,
		maxAttempts:  cfg.MaxJobAttempts,
		limiters:     make(map[string]*rate.Limiter),
		perSource:    rate.Limit(cfg.SourceRatePerSecond),
		burst:        cfg.SourceRateBurst,
		typeSlots:    typeSlots,
		sourceSlots:  make(map[string]chan struct{}),
		maxPerSource: cfg.MaxPerSource,
	}
}

/*
Run drains the queue until ctx is cancelled, then returns once every
in-flight job has finished.

Description: Cancellation is graceful by construction: workers observe ctx
only between jobs, and a job already dequeued runs on a detached context
bounded by the job duration ceiling. The reaper loop runs alongside the
workers, promoting due delayed jobs and re-issuing expired leases.
*/
func (pool *WorkerPool) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < pool.workerCount; i++ {
		group.Go(func() error {
			return pool.workerLoop(groupCtx)
		})
	}

	group.Go(func() error {
		return pool.reaperLoop(groupCtx)
	})

	pool.logger.Info("worker_pool_started", slog.Int("workers", pool.workerCount))
	return group.Wait()
}

// workerLoop is one worker's dequeue-execute cycle.
func (pool *WorkerPool) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		lease, err := pool.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pool.logger.Error("dequeue_failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		if lease == nil {
			continue
		}

		pool.execute(ctx, lease)
	}
}

// reaperLoop periodically promotes delayed jobs and re-issues expired leases.
func (pool *WorkerPool) reaperLoop(ctx context.Context) error {
	ticker := time.NewTicker(constants.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := pool.queue.Reap(ctx); err != nil {
				pool.logger.Error("reap_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// execute runs one leased job end to end and settles its queue state.
func (pool *WorkerPool) execute(ctx context.Context, lease *Lease) {
	// The job survives shutdown cancellation; only its own ceiling stops it.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.JobMaxDuration)
	defer cancel()

	link, err := pool.sources.FindByID(jobCtx, lease.Job.SeriesSourceID)
	if err != nil {
		if apperr.IsNotFound(err) {
			// Target deleted after enqueue. The job is moot.
			pool.logger.Warn("job_target_gone", slog.String("key", lease.Job.Key))
			pool.settle(lease, pool.queue.Complete(jobCtx, lease))
			return
		}
		pool.fail(jobCtx, lease, "", err)
		return
	}

	release, acquired := pool.acquireSlots(lease.Job.Type, link.SourceName)
	if !acquired {
		// Local saturation, not a failure; another worker slot will take
		// the job shortly.
		pool.settle(lease, pool.queue.Postpone(jobCtx, lease, Backoff(0)))
		return
	}
	defer release()

	if !pool.breakers.Allow(link.SourceName) {
		pool.logger.Info("job_postponed_breaker_open",
			slog.String("key", lease.Job.Key),
			slog.String("source", link.SourceName),
		)
		pool.settle(lease, pool.queue.Postpone(jobCtx, lease, constants.BreakerCooldown))
		return
	}

	if err := pool.limiter(link.SourceName).Wait(jobCtx); err != nil {
		pool.settle(lease, pool.queue.Postpone(jobCtx, lease, Backoff(0)))
		return
	}

	handler, ok := pool.handlers[lease.Job.Type]
	if !ok {
		pool.fail(jobCtx, lease, link.SourceName,
			apperr.Internal(fmt.Errorf("queue: no handler registered for sync type %q", lease.Job.Type)))
		return
	}

	stopHeartbeat := pool.startHeartbeat(jobCtx, lease)
	commitCheck := func(checkCtx context.Context) error {
		return pool.queue.ValidateFence(checkCtx, lease)
	}

	err = handler(jobCtx, link, commitCheck)
	stopHeartbeat()

	if errors.Is(err, ErrFenceSuperseded) {
		// A successor took over after our lease expired. It owns the queue
		// state now; touching it here would tear down the successor's lease.
		pool.logger.Warn("job_superseded",
			slog.String("key", lease.Job.Key),
			slog.Int64("fence_token", lease.FenceToken),
		)
		return
	}

	if err != nil {
		pool.breakers.Failure(link.SourceName)
		pool.fail(jobCtx, lease, link.SourceName, err)
		return
	}

	pool.breakers.Success(link.SourceName)
	pool.settle(lease, pool.queue.Complete(jobCtx, lease))
}

// fail routes a job error by its class: transient failures retry with
// backoff until the attempt budget runs out, data failures drop the job,
// everything else dead-letters.
func (pool *WorkerPool) fail(ctx context.Context, lease *Lease, sourceName string, cause error) {
	if sourceName != "" {
		if err := pool.sources.RecordFailure(ctx, lease.Job.SeriesSourceID, time.Now().UTC()); err != nil {
			pool.logger.Error("record_failure_failed",
				slog.String("key", lease.Job.Key),
				slog.String("error", err.Error()),
			)
		}
	}

	class := classifyJobError(cause)

	// The record rides inside the job payload across retries, so the
	// dead-letter row ends up with the full failure history, not just the
	// final error.
	lease.Job.History = append(lease.Job.History, AttemptRecord{
		Attempt:  lease.Job.Attempt,
		Class:    string(class),
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	})

	pool.logger.Warn("job_failed",
		slog.String("key", lease.Job.Key),
		slog.Int("attempt", lease.Job.Attempt),
		slog.String("class", string(class)),
		slog.String("error", cause.Error()),
	)

	switch class {
	case apperr.ClassTransient:
		if lease.Job.Attempt+1 >= pool.maxAttempts {
			pool.settle(lease, pool.queue.DeadLetter(ctx, lease, cause))
			return
		}
		pool.settle(lease, pool.queue.Retry(ctx, lease, retryDelay(lease.Job.Attempt, cause)))
	case apperr.ClassData:
		// A malformed target is not going to fix itself by retrying.
		pool.settle(lease, pool.queue.Complete(ctx, lease))
	case apperr.ClassStructural:
		// The destructive path was already refused; nothing left to do.
		pool.settle(lease, pool.queue.Complete(ctx, lease))
	default:
		pool.settle(lease, pool.queue.DeadLetter(ctx, lease, cause))
	}
}

// settle logs queue bookkeeping failures; they are not recoverable here,
// the reaper will re-issue the job.
func (pool *WorkerPool) settle(lease *Lease, err error) {
	if err != nil {
		pool.logger.Error("job_settlement_failed",
			slog.String("key", lease.Job.Key),
			slog.String("error", err.Error()),
		)
	}
}

// startHeartbeat extends the job lease until the returned stop function is
// called.
func (pool *WorkerPool) startHeartbeat(ctx context.Context, lease *Lease) (stop func()) {
	heartbeatCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(constants.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := pool.queue.Heartbeat(heartbeatCtx, lease); err != nil {
					pool.logger.Warn("heartbeat_failed",
						slog.String("key", lease.Job.Key),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()

	return cancel
}

// acquireSlots takes one per-type and one per-source concurrency slot,
// non-blocking. On success the release function returns both.
func (pool *WorkerPool) acquireSlots(syncType SyncType, sourceName string) (release func(), acquired bool) {
	typeSlot, known := pool.typeSlots[syncType]
	if known {
		select {
		case typeSlot <- struct{}{}:
		default:
			return nil, false
		}
	}

	sourceSlot := pool.sourceSlot(sourceName)
	select {
	case sourceSlot <- struct{}{}:
	default:
		if known {
			<-typeSlot
		}
		return nil, false
	}

	return func() {
		<-sourceSlot
		if known {
			<-typeSlot
		}
	}, true
}

// sourceSlot returns the concurrency semaphore for one upstream source,
// creating it on first use.
func (pool *WorkerPool) sourceSlot(sourceName string) chan struct{} {
	pool.slotMu.Lock()
	defer pool.slotMu.Unlock()

	slot, ok := pool.sourceSlots[sourceName]
	if !ok {
		slot = make(chan struct{}, pool.maxPerSource)
		pool.sourceSlots[sourceName] = slot
	}
	return slot
}

// limiter returns the token bucket for one upstream source, creating it on
// first use.
func (pool *WorkerPool) limiter(sourceName string) *rate.Limiter {
	pool.limiterMu.Lock()
	defer pool.limiterMu.Unlock()

	limiter, ok := pool.limiters[sourceName]
	if !ok {
		limiter = rate.NewLimiter(pool.perSource, pool.burst)
		pool.limiters[sourceName] = limiter
	}
	return limiter
}

// classifyJobError maps source adapter errors and app errors onto the
// job-boundary classes.
func classifyJobError(err error) apperr.Class {
	switch {
	case source.IsNetwork(err):
		return apperr.ClassTransient
	case source.IsRateLimited(err) != nil:
		return apperr.ClassTransient
	case source.IsParse(err):
		return apperr.ClassData
	default:
		return apperr.Classify(err)
	}
}

// retryDelay computes the next retry delay, honoring an upstream-supplied
// Retry-After when it exceeds the computed backoff.
func retryDelay(attempt int, cause error) time.Duration {
	delay := Backoff(attempt)
	if limited := source.IsRateLimited(cause); limited != nil && limited.RetryAfter > delay {
		delay = limited.RetryAfter
	}
	return delay
}
