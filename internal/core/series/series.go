// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package series defines the canonical work entity and its upstream linkages.

A Series is the single authoritative record for one real-world work after
deduplication. A SeriesSource links a Series to one upstream provider's
representation of it; a work mirrored on five sites has one Series and five
SeriesSource rows.
*/
package series

import "time"

// # Status Enums
//
// Every status domain is a closed string type defined once. Switches over
// these types enumerate all values; there is no "unknown" catch-all.

// Status is the publication status of a canonical work.
type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusHiatus    Status = "hiatus"
	StatusCancelled Status = "cancelled"
)

// SyncTier controls how often a source link is refreshed.
type SyncTier string

const (
	// TierHot is for actively serialising works with frequent releases.
	TierHot SyncTier = "hot"
	// TierWarm is for slow-moving works.
	TierWarm SyncTier = "warm"
	// TierCold is for dormant or completed works.
	TierCold SyncTier = "cold"
)

// MetadataStatus tracks the enrichment state of a source link.
type MetadataStatus string

const (
	MetadataPending     MetadataStatus = "pending"
	MetadataEnriched    MetadataStatus = "enriched"
	MetadataUnavailable MetadataStatus = "unavailable"
	MetadataFailed      MetadataStatus = "failed"
)

// MetadataRank orders the provenance quality of a Series' metadata.
// Higher ranks win merge-primary selection.
type MetadataRank int16

const (
	// RankInferred means metadata was derived automatically from a source.
	RankInferred MetadataRank = 0
	// RankSourceConfirmed means a canonical upstream confirmed the metadata.
	RankSourceConfirmed MetadataRank = 1
	// RankUserOverride means a human explicitly set the metadata.
	RankUserOverride MetadataRank = 2
)

// # Entities

// Series is the canonical work record.
//
// # Canonical Chain Invariant
//
// CanonicalSeriesID is non-nil only for rows that were merged into another
// Series. The chain is always exactly one hop: it points directly at a true
// canonical row, never at another alias. Merges resolve transitively at
// merge time, so reads never have to chase pointers.
type Series struct {
	ID                string
	Title             string
	AlternativeTitles []string

	// Matching signals used by canonicalization.
	Creators        []string
	Language        string
	PublicationYear int

	Status                Status
	MetadataSchemaVersion int
	MetadataRank          MetadataRank
	FollowerCount         int64

	// NeedsReview flags a medium-confidence match for manual inspection.
	NeedsReview bool

	CanonicalSeriesID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsCanonical reports whether this row is a true canonical record
// (not an alias merged into another Series).
func (s *Series) IsCanonical() bool {
	return s.CanonicalSeriesID == nil
}

// SeriesSource links a canonical Series to one upstream representation.
//
// (SourceName, SourceID) is unique: the same upstream entity is never linked
// twice. URLHash is unique across the table so two Series can never race to
// claim the same upstream page.
type SeriesSource struct {
	ID       string
	SeriesID string

	SourceName string
	SourceID   string
	SourceURL  string
	URLHash    int64

	// TrustScore reflects sync reliability, clamped to [0.5, 1.0].
	TrustScore float64
	SyncTier   SyncTier

	LastSuccessAt       *time.Time
	LastAttemptAt       *time.Time
	ConsecutiveFailures int

	MetadataStatus     MetadataStatus
	MetadataRetryCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TierInterval returns the refresh interval for a sync tier.
func TierInterval(tier SyncTier, hot, warm, cold time.Duration) time.Duration {
	switch tier {
	case TierHot:
		return hot
	case TierWarm:
		return warm
	case TierCold:
		return cold
	}
	// Unreachable for well-formed rows; callers validate tier on ingest.
	return cold
}
