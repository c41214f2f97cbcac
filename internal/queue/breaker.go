// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"sync"
	"time"

	"github.com/taibuivan/rensai/internal/platform/constants"
)

// # Per-Source Circuit Breaker

// BreakerState is the lifecycle state of one source's breaker.
type BreakerState string

const (
	// BreakerClosed passes calls through and counts failures.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen admits a single trial call after the cooldown.
	BreakerHalfOpen BreakerState = "half_open"
)

// breaker is the state for one upstream source.
type breaker struct {
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// BreakerSet tracks one circuit breaker per upstream source name.
//
// A broken upstream fails every job targeting it; without a breaker, the
// worker pool burns its whole retry budget re-probing a dead site. The
// breaker opens after a run of consecutive failures and rejects that
// source's jobs for a cooldown, after which a single trial job probes
// whether the upstream recovered.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*breaker

	threshold int
	cooldown  time.Duration

	// now is injectable for tests.
	now func() time.Time
}

// NewBreakerSet constructs a breaker set with the default thresholds.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{
		breakers:  make(map[string]*breaker),
		threshold: constants.BreakerFailureThreshold,
		cooldown:  constants.BreakerCooldown,
		now:       time.Now,
	}
}

// Allow reports whether a job for the source may run now.
//
// In the half-open state exactly one caller is admitted as the trial; all
// others are rejected until the trial reports back.
func (set *BreakerSet) Allow(source string) bool {
	set.mu.Lock()
	defer set.mu.Unlock()

	b := set.get(source)
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if set.now().Sub(b.openedAt) < set.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		return true
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return true
}

// Success records a clean execution, closing the breaker.
func (set *BreakerSet) Success(source string) {
	set.mu.Lock()
	defer set.mu.Unlock()

	b := set.get(source)
	b.state = BreakerClosed
	b.failures = 0
	b.trialInFlight = false
}

// Failure records a failed execution. In the closed state it counts toward
// the threshold; in the half-open state it re-opens immediately.
func (set *BreakerSet) Failure(source string) {
	set.mu.Lock()
	defer set.mu.Unlock()

	b := set.get(source)
	switch b.state {
	case BreakerHalfOpen:
		set.open(b)
	case BreakerClosed:
		b.failures++
		if b.failures >= set.threshold {
			set.open(b)
		}
	case BreakerOpen:
		// Late failure from a job started before the breaker opened.
	}
}

// States snapshots every known breaker, for the operational surface.
func (set *BreakerSet) States() map[string]BreakerState {
	set.mu.Lock()
	defer set.mu.Unlock()

	states := make(map[string]BreakerState, len(set.breakers))
	for source, b := range set.breakers {
		states[source] = b.state
	}
	return states
}

func (set *BreakerSet) get(source string) *breaker {
	b, ok := set.breakers[source]
	if !ok {
		b = &breaker{state: BreakerClosed}
		set.breakers[source] = b
	}
	return b
}

func (set *BreakerSet) open(b *breaker) {
	b.state = BreakerOpen
	b.failures = 0
	b.trialInFlight = false
	b.openedAt = set.now()
}
