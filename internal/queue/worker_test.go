// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/config"
)

// recordingQueue captures settlement calls without any Redis behind it.
type recordingQueue struct {
	Queue
	retried     []*Lease
	deadLetters []*DeadLetter
	completed   int
}

func (q *recordingQueue) Retry(_ context.Context, lease *Lease, _ time.Duration) error {
	copied := *lease
	q.retried = append(q.retried, &copied)
	return nil
}

func (q *recordingQueue) DeadLetter(_ context.Context, lease *Lease, cause error) error {
	q.deadLetters = append(q.deadLetters, newDeadLetter(lease, cause))
	return nil
}

func (q *recordingQueue) Complete(context.Context, *Lease) error {
	q.completed++
	return nil
}

// quietSources swallows failure bookkeeping.
type quietSources struct {
	series.SourceRepository
}

func (quietSources) RecordFailure(context.Context, string, time.Time) error { return nil }

func testPool(q Queue) *WorkerPool {
	cfg := &config.Config{
		WorkerCount:         1,
		MaxPerQueue:         1,
		MaxPerSource:        1,
		MaxJobAttempts:      3,
		SourceRatePerSecond: 100,
		SourceRateBurst:     1,
	}
	return NewWorkerPool(cfg, q, quietSources{}, NewBreakerSet(), nil, slog.New(slog.DiscardHandler))
}

// # Failure Routing

func TestFailHistory(t *testing.T) {
	t.Run("should record each failed execution on the job", func(t *testing.T) {
		q := &recordingQueue{}
		pool := testPool(q)
		lease := &Lease{Job: NewJob(TypeFull, "ss-1")}

		pool.fail(context.Background(), lease, "mangazone", apperr.Transient("upstream timeout", nil))

		require.Len(t, q.retried, 1)
		history := q.retried[0].Job.History
		require.Len(t, history, 1)
		assert.Equal(t, 0, history[0].Attempt)
		assert.Equal(t, string(apperr.ClassTransient), history[0].Class)
		assert.Equal(t, "upstream timeout", history[0].Error)
		assert.False(t, history[0].FailedAt.IsZero())
	})

	t.Run("should carry the full history into the dead letter", func(t *testing.T) {
		q := &recordingQueue{}
		pool := testPool(q)
		lease := &Lease{Job: NewJob(TypeFull, "ss-1")}

		for attempt := 0; attempt < 3; attempt++ {
			lease.Job.Attempt = attempt
			pool.fail(context.Background(), lease, "mangazone", apperr.Transient("upstream timeout", nil))
		}

		assert.Len(t, q.retried, 2)
		require.Len(t, q.deadLetters, 1)

		letter := q.deadLetters[0]
		assert.Equal(t, 3, letter.Attempts)
		require.Len(t, letter.History, 3)
		for i, record := range letter.History {
			assert.Equal(t, i, record.Attempt)
			assert.Equal(t, string(apperr.ClassTransient), record.Class)
		}
	})

	t.Run("should drop data errors without a retry or dead letter", func(t *testing.T) {
		q := &recordingQueue{}
		pool := testPool(q)
		lease := &Lease{Job: NewJob(TypeFull, "ss-1")}

		pool.fail(context.Background(), lease, "mangazone",
			&source.ParseError{Cause: errors.New("bad html")})

		assert.Empty(t, q.retried)
		assert.Empty(t, q.deadLetters)
		assert.Equal(t, 1, q.completed)
	})
}
