// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, sync limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the operational HTTP server.
  - Sync Limits: Batch caps, chunk sizes, and refresh tier intervals.
  - Queue Timing: Lease, heartbeat, and backoff windows.
  - Redis Taxonomy: Key prefixes for queue and lease state.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "rensai-syncd"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight jobs to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Sync Limits

const (
	// DefaultBatchCap is the maximum number of sync candidates selected per scheduler run.
	DefaultBatchCap = 500

	// MaxChaptersPerSync is the maximum number of chapters processed in a single
	// transaction chunk. Syncs exceeding this are split across independently
	// committed chunks.
	MaxChaptersPerSync = 500

	// SuspectedErrorMissingFraction is the fraction of vanished chapters above
	// which a sync is treated as a suspected upstream error instead of a real
	// removal. No deletions are applied past this threshold.
	SuspectedErrorMissingFraction = 0.5

	// TrustScoreMin and TrustScoreMax clamp the per-source trust score.
	TrustScoreMin = 0.5
	TrustScoreMax = 1.0

	// TrustScoreInitial is assigned to a freshly linked source.
	TrustScoreInitial = 0.7

	// TrustScoreSuccessDelta is added to the trust score after a clean sync.
	TrustScoreSuccessDelta = 0.01

	// TrustScoreFailureDelta is subtracted from the trust score after a failed sync.
	TrustScoreFailureDelta = 0.05

	// MetadataMaxRetries is how many enrichment failures are tolerated before a
	// source's metadata status transitions to failed.
	MetadataMaxRetries = 3
)

// # Refresh Tiers

const (
	// TierHotInterval is the refresh interval for actively serialising titles.
	TierHotInterval = 30 * time.Minute

	// TierWarmInterval is the refresh interval for slow-moving titles.
	TierWarmInterval = 6 * time.Hour

	// TierColdInterval is the refresh interval for dormant or completed titles.
	TierColdInterval = 48 * time.Hour
)

// # Queue Timing

const (
	// DefaultMaxAttempts is the retry budget for a sync job.
	DefaultMaxAttempts = 5

	// BackoffBaseDelay is the base for exponential retry backoff.
	BackoffBaseDelay = 5 * time.Second

	// BackoffMaxDelay caps the exponential retry backoff.
	BackoffMaxDelay = 15 * time.Minute

	// JobLeaseTTL is how long a worker owns a dequeued job before it is
	// considered stalled and eligible for re-lease.
	JobLeaseTTL = 2 * time.Minute

	// HeartbeatInterval is how often an active worker extends its job leases.
	HeartbeatInterval = 30 * time.Second

	// ReaperInterval is how often expired leases and due delayed jobs are swept.
	ReaperInterval = 15 * time.Second

	// JobMaxDuration is the hard execution ceiling for one job.
	JobMaxDuration = 5 * time.Minute

	// LockAcquireTimeout bounds the non-blocking advisory lock attempt.
	LockAcquireTimeout = 2 * time.Second
)

// # Circuit Breaker

const (
	// BreakerFailureThreshold is the consecutive-failure count that opens a breaker.
	BreakerFailureThreshold = 5

	// BreakerCooldown is how long an open breaker rejects calls before allowing
	// a half-open trial.
	BreakerCooldown = 5 * time.Minute
)

// # Redis Prefixes (Queue Taxonomy)

const (
	// RedisKeyReady is the list of jobs ready for immediate pickup.
	RedisKeyReady = "sync:ready"

	// RedisKeyDelayed is the sorted set of jobs scored by their ready instant.
	RedisKeyDelayed = "sync:delayed"

	// RedisKeyProcessing is the sorted set of leased jobs scored by lease expiry.
	RedisKeyProcessing = "sync:processing"

	// RedisPrefixJob prefixes per-job payload keys, which double as
	// idempotency markers.
	RedisPrefixJob = "sync:job:"

	// RedisPrefixFence prefixes per-target fence token counters.
	RedisPrefixFence = "sync:fence:"
)
