// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/constants"
)

// # Idempotency Keys

func TestIdempotencyKey(t *testing.T) {
	t.Run("should be deterministic per target", func(t *testing.T) {
		first := IdempotencyKey(TypeFull, "ss-1")
		second := IdempotencyKey(TypeFull, "ss-1")

		assert.Equal(t, first, second)
		assert.Equal(t, "sync:full:ss-1", first)
	})

	t.Run("should separate sync types for the same target", func(t *testing.T) {
		full := IdempotencyKey(TypeFull, "ss-1")
		incremental := IdempotencyKey(TypeIncremental, "ss-1")

		assert.NotEqual(t, full, incremental)
	})
}

// # Retry Backoff

func TestBackoff(t *testing.T) {
	t.Run("should grow with the attempt number", func(t *testing.T) {
		// Jitter adds at most 20%, so consecutive attempts cannot overlap
		// once the base doubles.
		assert.GreaterOrEqual(t, Backoff(0), constants.BackoffBaseDelay)
		assert.Less(t, Backoff(0), 2*constants.BackoffBaseDelay)
		assert.GreaterOrEqual(t, Backoff(3), 8*constants.BackoffBaseDelay)
	})

	t.Run("should never exceed the cap", func(t *testing.T) {
		for attempt := 0; attempt < 64; attempt++ {
			assert.LessOrEqual(t, Backoff(attempt), constants.BackoffMaxDelay)
		}
	})

	t.Run("should saturate at the cap on shift overflow", func(t *testing.T) {
		assert.Equal(t, constants.BackoffMaxDelay, Backoff(63))
	})
}

func TestRetryDelay(t *testing.T) {
	t.Run("should honor a longer upstream retry-after", func(t *testing.T) {
		cause := &source.RateLimitedError{RetryAfter: time.Hour}

		assert.Equal(t, time.Hour, retryDelay(0, cause))
	})

	t.Run("should keep the backoff when retry-after is shorter", func(t *testing.T) {
		cause := &source.RateLimitedError{RetryAfter: time.Millisecond}

		assert.GreaterOrEqual(t, retryDelay(2, cause), 4*constants.BackoffBaseDelay)
	})
}

// # Error Classification

func TestClassifyJobError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Class
	}{
		{"network errors are transient", &source.NetworkError{Cause: errors.New("dial timeout")}, apperr.ClassTransient},
		{"rate limits are transient", &source.RateLimitedError{RetryAfter: time.Minute}, apperr.ClassTransient},
		{"parse errors are data errors", &source.ParseError{Cause: errors.New("bad html")}, apperr.ClassData},
		{"classified app errors pass through", apperr.Structural("wholesale change"), apperr.ClassStructural},
		{"unknown errors default to fatal", errors.New("boom"), apperr.ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyJobError(tt.err))
		})
	}
}

// # Circuit Breaker

func TestBreakerSet(t *testing.T) {
	newSet := func(now *time.Time) *BreakerSet {
		set := NewBreakerSet()
		set.now = func() time.Time { return *now }
		return set
	}

	t.Run("should stay closed below the failure threshold", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold-1; i++ {
			set.Failure("mangazone")
		}

		assert.True(t, set.Allow("mangazone"))
	})

	t.Run("should open after consecutive failures and reject calls", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold; i++ {
			set.Failure("mangazone")
		}

		assert.False(t, set.Allow("mangazone"))
		assert.Equal(t, BreakerOpen, set.States()["mangazone"])
	})

	t.Run("should reset the failure count on success", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold-1; i++ {
			set.Failure("mangazone")
		}
		set.Success("mangazone")
		for i := 0; i < constants.BreakerFailureThreshold-1; i++ {
			set.Failure("mangazone")
		}

		assert.True(t, set.Allow("mangazone"))
	})

	t.Run("should admit exactly one trial after the cooldown", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold; i++ {
			set.Failure("mangazone")
		}
		now = now.Add(constants.BreakerCooldown + time.Second)

		assert.True(t, set.Allow("mangazone"), "first caller is the trial")
		assert.False(t, set.Allow("mangazone"), "no second trial while one is in flight")
		assert.Equal(t, BreakerHalfOpen, set.States()["mangazone"])
	})

	t.Run("should close again on a successful trial", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold; i++ {
			set.Failure("mangazone")
		}
		now = now.Add(constants.BreakerCooldown + time.Second)

		assert.True(t, set.Allow("mangazone"))
		set.Success("mangazone")

		assert.Equal(t, BreakerClosed, set.States()["mangazone"])
		assert.True(t, set.Allow("mangazone"))
	})

	t.Run("should re-open on a failed trial", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold; i++ {
			set.Failure("mangazone")
		}
		now = now.Add(constants.BreakerCooldown + time.Second)

		assert.True(t, set.Allow("mangazone"))
		set.Failure("mangazone")

		assert.Equal(t, BreakerOpen, set.States()["mangazone"])
		assert.False(t, set.Allow("mangazone"))
	})

	t.Run("should isolate breakers per source", func(t *testing.T) {
		now := time.Now()
		set := newSet(&now)

		for i := 0; i < constants.BreakerFailureThreshold; i++ {
			set.Failure("mangazone")
		}

		assert.False(t, set.Allow("mangazone"))
		assert.True(t, set.Allow("comicvault"))
	})
}
