// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scheduler selects overdue sync targets and feeds the job queue.

Selection is tiered: hot sources refresh every half hour, warm every few
hours, cold every couple of days. Each run takes the most-stale targets
first, capped per batch, and skips targets that already have a job
outstanding. The scheduler is intentionally dumb about execution; fairness,
rate limiting, and retries all live behind the queue.
*/
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/platform/config"
	"github.com/taibuivan/rensai/internal/platform/constants"
	"github.com/taibuivan/rensai/internal/queue"
)

// Stats summarizes one scheduler run.
type Stats struct {
	Selected   int
	Enqueued   int
	Skipped    int
	Duplicates int
	Failures   int
}

// Scheduler periodically turns staleness into queue jobs.
type Scheduler struct {
	sources series.SourceRepository
	queue   queue.Queue
	logger  *slog.Logger

	interval       time.Duration
	batchCap       int
	failureCeiling int
}

// New wires the scheduler from configuration.
func New(cfg *config.Config, sources series.SourceRepository, q queue.Queue, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sources:        sources,
		queue:          q,
		logger:         logger,
		interval:       cfg.SchedulerInterval,
		batchCap:       cfg.SchedulerBatchCap,
		failureCeiling: cfg.SchedulerFailureCeiling,
	}
}

/*
Run executes scheduler passes on the configured interval until ctx is
cancelled.

Description: A failed pass is logged and the next tick proceeds normally;
scheduling is stateless, so there is nothing to recover beyond trying
again. Only ctx cancellation ends the loop.
*/
func (scheduler *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := scheduler.RunOnce(ctx)
			if err != nil {
				scheduler.logger.Error("scheduler_pass_failed", slog.String("error", err.Error()))
				continue
			}
			scheduler.logger.Info("scheduler_pass_completed",
				slog.Int("selected", stats.Selected),
				slog.Int("enqueued", stats.Enqueued),
				slog.Int("skipped", stats.Skipped),
				slog.Int("duplicates", stats.Duplicates),
				slog.Int("failures", stats.Failures),
			)
		}
	}
}

/*
RunOnce executes a single scheduling pass.

Description: Targets come back most-stale first, capped at the batch size;
a backlog larger than the cap drains over successive passes with the
oldest debt always served first. Targets with an outstanding job are
skipped before enqueueing, and the queue's idempotency keys catch the
race where a job appears between the check and the insert.

Per-target enqueue failures accumulate instead of aborting the pass. Only
when the failure count crosses the configured ceiling does the pass halt;
the default ceiling of zero means never halt, because one broken target
must not starve every other source of its refresh.
*/
func (scheduler *Scheduler) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	due, err := scheduler.sources.ListDue(ctx, time.Now().UTC(),
		constants.TierHotInterval, constants.TierWarmInterval, constants.TierColdInterval,
		scheduler.batchCap)
	if err != nil {
		return stats, err
	}
	stats.Selected = len(due)
	if len(due) == 0 {
		return stats, nil
	}

	// Hot links poll often, so they get the cheap incremental sync; the
	// slower tiers get the full sync that also reconciles deletions.
	types := make([]queue.SyncType, len(due))
	keys := make([]string, len(due))
	for i, link := range due {
		types[i] = queue.TypeFull
		if link.SyncTier == series.TierHot {
			types[i] = queue.TypeIncremental
		}
		keys[i] = queue.IdempotencyKey(types[i], link.ID)
	}

	outstanding, err := scheduler.queue.Outstanding(ctx, keys)
	if err != nil {
		return stats, err
	}

	accumulator := newErrorAccumulator(scheduler.failureCeiling)
	for i, link := range due {
		if outstanding[keys[i]] {
			stats.Skipped++
			continue
		}

		err := scheduler.queue.Enqueue(ctx, queue.NewJob(types[i], link.ID))
		switch {
		case err == nil:
			stats.Enqueued++
		case errors.Is(err, queue.ErrDuplicateJob):
			stats.Duplicates++
		default:
			stats.Failures++
			scheduler.logger.Warn("enqueue_failed",
				slog.String("key", keys[i]),
				slog.String("error", err.Error()),
			)
			if accumulator.record() {
				return stats, err
			}
		}
	}

	return stats, nil
}

// errorAccumulator counts per-target failures against a halt ceiling.
// A ceiling of zero disables halting entirely.
type errorAccumulator struct {
	ceiling int
	count   int
}

func newErrorAccumulator(ceiling int) *errorAccumulator {
	return &errorAccumulator{ceiling: ceiling}
}

// record counts one failure and reports whether the pass must halt.
func (accumulator *errorAccumulator) record() bool {
	accumulator.count++
	return accumulator.ceiling > 0 && accumulator.count >= accumulator.ceiling
}
