// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package series

import (
	"context"
	"time"
)

// # Series Data Access

// Repository defines the data access contract for canonical Series rows.
type Repository interface {

	/*
		FindByID returns the Series with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Series: Hydrated entity
		  - error: ErrNotFound if missing
	*/
	FindByID(context context.Context, id string) (*Series, error)

	/*
		Create persists a new canonical Series.

		Parameters:
		  - context: context.Context
		  - s: *Series

		Returns:
		  - error: Storage failure
	*/
	Create(context context.Context, s *Series) error

	/*
		ListCanonicalCandidates returns canonical (non-alias) Series whose
		title or alternative titles contain any of the given normalized
		tokens. This is the candidate pre-filter for matching; precise
		scoring happens in the engine.

		Parameters:
		  - context: context.Context
		  - tokens: []string (normalized title tokens)
		  - limit: int

		Returns:
		  - []*Series: Candidate set
		  - error: Storage failure
	*/
	ListCanonicalCandidates(context context.Context, tokens []string, limit int) ([]*Series, error)

	/*
		SetNeedsReview updates the review flag on a Series.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - needsReview: bool

		Returns:
		  - error: Update failure
	*/
	SetNeedsReview(context context.Context, id string, needsReview bool) error
}

// # SeriesSource Data Access

// SourceRepository defines the data access contract for source links.
type SourceRepository interface {

	/*
		FindByID returns the source link with the given ID.
	*/
	FindByID(context context.Context, id string) (*SeriesSource, error)

	/*
		FindByExternalID returns the link for an upstream (source_name,
		source_id) pair, the exact-identity lookup for canonicalization.

		Returns:
		  - *SeriesSource: The existing link
		  - error: ErrNotFound when the upstream entity was never linked
	*/
	FindByExternalID(context context.Context, sourceName, sourceID string) (*SeriesSource, error)

	/*
		FindOrCreate atomically links an upstream entity, relying on the
		(source_name, source_id) and url_hash unique constraints to resolve
		races between concurrent workers.

		Returns:
		  - *SeriesSource: The winning row (existing or newly created)
		  - bool: true when this call created the row
		  - error: Storage failure
	*/
	FindOrCreate(context context.Context, link *SeriesSource) (*SeriesSource, bool, error)

	/*
		ListDue returns source links whose staleness exceeds their tier
		interval, ordered by staleness descending, capped at limit.

		Parameters:
		  - context: context.Context
		  - now: time.Time (scheduler's reference instant)
		  - hot, warm, cold: time.Duration (tier intervals)
		  - limit: int (batch cap)
	*/
	ListDue(context context.Context, now time.Time, hot, warm, cold time.Duration, limit int) ([]*SeriesSource, error)

	/*
		RecordSuccess marks a completed sync: updates last_success_at,
		increments the trust score (clamped), and resets failure counters.
	*/
	RecordSuccess(context context.Context, id string, at time.Time) error

	/*
		RecordFailure marks a failed sync: updates last_attempt_at, decays
		the trust score (clamped), and increments failure counters. The
		metadata status transitions to failed once the retry budget is
		exhausted.
	*/
	RecordFailure(context context.Context, id string, at time.Time) error

	/*
		CountStaleByTier returns the number of overdue links per tier,
		for the operational surface.
	*/
	CountStaleByTier(context context.Context, now time.Time, hot, warm, cold time.Duration) (map[SyncTier]int, error)
}
