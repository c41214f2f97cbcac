// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"errors"
	"time"

	"github.com/taibuivan/rensai/internal/platform/apperr"
)

// ErrDuplicateJob is returned when an enqueue finds the idempotency key
// already outstanding. The caller treats it as success; the work is either
// queued or running.
var ErrDuplicateJob = apperr.Conflict("Job is already outstanding")

// ErrFenceSuperseded is returned by ValidateFence when a newer execution
// has been issued for the same target. The stale holder must abandon its
// transaction and leave all queue state to the successor.
var ErrFenceSuperseded = apperr.Internal(errors.New("queue: fence token superseded"))

// Depths is the queue depth snapshot for the operational surface.
type Depths struct {
	Ready      int64 `json:"ready"`
	Delayed    int64 `json:"delayed"`
	Processing int64 `json:"processing"`
}

// Queue defines the durable job pipeline contract.
type Queue interface {

	/*
		Enqueue inserts a job for immediate pickup. First writer wins per
		idempotency key; a duplicate returns [ErrDuplicateJob].
	*/
	Enqueue(context context.Context, job Job) error

	/*
		Dequeue blocks up to its internal poll timeout for the next ready
		job and leases it. Returns (nil, nil) when the queue stayed empty,
		so callers can re-check for shutdown between polls.

		Leasing issues a fresh fence token; any earlier lease on the same
		target is thereby invalidated.
	*/
	Dequeue(context context.Context) (*Lease, error)

	/*
		Heartbeat extends the lease of a running job. A job that misses its
		heartbeats past the lease TTL is re-issued by the reaper.
	*/
	Heartbeat(context context.Context, lease *Lease) error

	/*
		ValidateFence confirms the lease's fence token is still current.
		Returns a fatal error when a newer execution has been issued.
	*/
	ValidateFence(context context.Context, lease *Lease) error

	/*
		Complete removes a finished job and its idempotency marker.
	*/
	Complete(context context.Context, lease *Lease) error

	/*
		Retry re-schedules a failed job after the given delay, incrementing
		its attempt counter.
	*/
	Retry(context context.Context, lease *Lease, delay time.Duration) error

	/*
		Postpone re-schedules a job without counting an attempt, used when
		the job was never executed (open circuit breaker, local saturation).
	*/
	Postpone(context context.Context, lease *Lease, delay time.Duration) error

	/*
		DeadLetter persists the job to the dead-letter table and removes it
		from the queue. Dead letters are never retried automatically.
	*/
	DeadLetter(context context.Context, lease *Lease, cause error) error

	/*
		Outstanding reports which of the given idempotency keys currently
		have a queued or running job. The scheduler uses this to skip
		targets that are already covered.
	*/
	Outstanding(context context.Context, keys []string) (map[string]bool, error)

	/*
		Reap promotes due delayed jobs to ready and re-issues jobs whose
		lease expired. Returns how many jobs moved.
	*/
	Reap(context context.Context) (int, error)

	/*
		Stats returns the current queue depths.
	*/
	Stats(context context.Context) (Depths, error)
}
