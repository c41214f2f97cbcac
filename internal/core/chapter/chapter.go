// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package chapter defines logical chapters and their per-source availability.

A LogicalChapter is the deduplicated release record for one series: chapter
10.5 exists once per series regardless of how many upstreams carry it. A
ChapterSource records that one upstream serves that logical chapter, with
its own URL and identifier.

Identity within a series is the fixed-point sort key (band, whole, frac);
the raw display string is preserved separately for presentation.
*/
package chapter

import (
	"time"

	"github.com/taibuivan/rensai/pkg/chapternum"
)

// # Entities

// LogicalChapter is the deduplicated release record for one series.
//
// DeletedAt is a tombstone, never a hard delete: a chapter that every source
// stopped serving keeps its row so a later re-appearance restores history
// instead of resetting FirstSeenAt.
type LogicalChapter struct {
	ID       string
	SeriesID string

	// Number is the fixed-point ordering key derived from the raw chapter
	// string. It is the uniqueness identity within a series.
	Number        chapternum.Key
	DisplayNumber string

	Title  string
	Volume string

	// PublishedAt is the earliest upstream publication time seen, nil when
	// no source reported one.
	PublishedAt *time.Time

	FirstSeenAt time.Time
	DeletedAt   *time.Time
}

// ChapterSource records that one upstream serves a logical chapter.
//
// (SeriesSourceID, ChapterID) is unique: a source serves a given logical
// chapter at most once.
type ChapterSource struct {
	ID             string
	ChapterID      string
	SeriesSourceID string

	SourceChapterID  string
	SourceChapterURL string

	IsAvailable       bool
	DetectedAt        time.Time
	SourcePublishedAt *time.Time
	DeletedAt         *time.Time
}

// # Diff Inputs and Outputs

// SourcedChapter is the joined per-source chapter state the differ works
// from: one row per active ChapterSource with its logical chapter's key.
type SourcedChapter struct {
	ChapterSourceID string
	ChapterID       string

	Key           chapternum.Key
	DisplayNumber string
	Title         string
	Volume        string

	SourceChapterID   string
	SourceChapterURL  string
	SourcePublishedAt *time.Time
}

// Upsert is one chapter to create or refresh during a sync.
type Upsert struct {
	Key           chapternum.Key
	DisplayNumber string
	Title         string
	Volume        string

	SourceChapterID   string
	SourceChapterURL  string
	SourcePublishedAt *time.Time
}

// ChangeSet is the complete outcome of diffing one upstream fetch against
// stored state, applied in a single transaction per chunk.
type ChangeSet struct {
	SeriesID       string
	SeriesSourceID string

	// Upserts are chapters present upstream: new ones are created, existing
	// ones refreshed and un-tombstoned.
	Upserts []Upsert

	// TombstoneChapterSourceIDs are ChapterSource rows whose chapters
	// vanished upstream. The logical chapter is tombstoned only when no
	// other active source still serves it.
	TombstoneChapterSourceIDs []string
}

// Empty reports whether applying this change set would be a no-op.
func (c *ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.TombstoneChapterSourceIDs) == 0
}
