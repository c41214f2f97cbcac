// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package queue implements the durable sync job pipeline on Redis.

Jobs flow through three structures: a ready list, a delayed sorted set
(scored by the instant the job becomes ready), and per-job hashes that
double as idempotency markers. A worker holding a job also holds a lease
with a TTL and a monotonically increasing fence token; a stalled worker's
lease expires, the job is re-issued with a higher token, and the stale
worker's writes are rejected at commit time.
*/
package queue

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/taibuivan/rensai/internal/platform/constants"
)

// # Job Model

// SyncType identifies how much of a source link a job refreshes.
//
// The set is closed; the type is part of the idempotency key, so a full and
// an incremental sync for the same source coexist in the queue.
type SyncType string

const (
	// TypeFull refreshes the complete chapter list of a source link and is
	// the only type allowed to tombstone vanished chapters.
	TypeFull SyncType = "full"

	// TypeIncremental refreshes recent chapters only. Upserts apply as
	// usual; absence from an incremental batch proves nothing, so it never
	// tombstones.
	TypeIncremental SyncType = "incremental"
)

// Job is one unit of sync work.
type Job struct {
	// Key is the deterministic idempotency key (see [IdempotencyKey]).
	Key string `json:"key"`

	Type           SyncType `json:"type"`
	SeriesSourceID string   `json:"series_source_id"`

	// Attempt counts completed executions, starting at 0.
	Attempt int `json:"attempt"`

	// History records every failed execution so far. It rides inside the
	// job payload across retries and lands in the dead-letter row intact.
	History []AttemptRecord `json:"history,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// AttemptRecord is one failed execution of a job.
type AttemptRecord struct {
	Attempt  int       `json:"attempt"`
	Class    string    `json:"class"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// IdempotencyKey derives the deterministic queue key for a sync target.
//
// Two schedulers racing on the same target compute the same key, and the
// queue's first-writer-wins insert makes the second enqueue a no-op.
func IdempotencyKey(syncType SyncType, seriesSourceID string) string {
	return fmt.Sprintf("sync:%s:%s", syncType, seriesSourceID)
}

// NewJob builds a job for a sync target with its idempotency key.
func NewJob(syncType SyncType, seriesSourceID string) Job {
	return Job{
		Key:            IdempotencyKey(syncType, seriesSourceID),
		Type:           syncType,
		SeriesSourceID: seriesSourceID,
		EnqueuedAt:     time.Now().UTC(),
	}
}

// # Retry Backoff

// Backoff returns the delay before retry number attempt (0-based).
//
// The delay grows exponentially from the base, is capped, and carries up to
// 20% random jitter so a burst of failures against one upstream does not
// re-arrive as a synchronized burst of retries.
func Backoff(attempt int) time.Duration {
	delay := constants.BackoffBaseDelay << uint(attempt)
	if delay <= 0 || delay > constants.BackoffMaxDelay {
		delay = constants.BackoffMaxDelay
	}

	jitter := time.Duration(rand.Int64N(int64(delay) / 5))
	delay += jitter

	if delay > constants.BackoffMaxDelay {
		delay = constants.BackoffMaxDelay
	}
	return delay
}

// Lease is a worker's exclusive hold on one dequeued job.
type Lease struct {
	Job Job

	// FenceToken is the monotonically increasing token issued for this
	// execution. Any execution with a lower token for the same target is
	// stale and must not commit.
	FenceToken int64
}
