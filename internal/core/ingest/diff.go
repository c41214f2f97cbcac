// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"sort"

	"github.com/taibuivan/rensai/internal/core/chapter"
	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/pkg/chapternum"
	"github.com/taibuivan/rensai/pkg/urlnorm"
)

// # Normalization

// NormalizeReport summarizes what normalization had to clean up, for the
// sync outcome log line.
type NormalizeReport struct {
	// Dropped counts raw entries discarded for an unusable URL.
	Dropped int
	// Duplicates counts entries collapsed because another entry in the same
	// fetch normalized to the same chapter key.
	Duplicates int
	// WasUnsorted records that the upstream returned chapters out of order.
	WasUnsorted bool
}

// normalizeBatch converts a raw upstream fetch into deduplicated, ordered
// upserts.
//
// Entries with an unusable URL are dropped rather than failing the sync;
// a single malformed row must not block the other five hundred. Within one
// fetch, entries collapsing to the same chapter key are deduplicated
// first-wins, matching upstream presentation order.
func normalizeBatch(raw []source.RawChapter) ([]chapter.Upsert, NormalizeReport) {
	var report NormalizeReport

	seen := make(map[chapternum.Key]bool, len(raw))
	upserts := make([]chapter.Upsert, 0, len(raw))

	for _, entry := range raw {
		normalizedURL, err := urlnorm.Normalize(entry.URL)
		if err != nil {
			report.Dropped++
			continue
		}

		key := chapternum.Normalize(entry.Number)
		if seen[key] {
			report.Duplicates++
			continue
		}
		seen[key] = true

		upsert := chapter.Upsert{
			Key:              key,
			DisplayNumber:    entry.Number,
			Title:            entry.Title,
			Volume:           entry.Volume,
			SourceChapterID:  entry.SourceChapterID,
			SourceChapterURL: normalizedURL,
		}
		if !entry.PublishedAt.IsZero() {
			publishedAt := entry.PublishedAt
			upsert.SourcePublishedAt = &publishedAt
		}

		upserts = append(upserts, upsert)
	}

	// Upstreams usually return chapters already ordered; when they do not,
	// restore the canonical order so chunk boundaries stay deterministic.
	if !sort.SliceIsSorted(upserts, func(i, j int) bool {
		return upserts[i].Key.Less(upserts[j].Key)
	}) {
		report.WasUnsorted = true
		sort.Slice(upserts, func(i, j int) bool {
			return upserts[i].Key.Less(upserts[j].Key)
		})
	}

	return upserts, report
}

// # Diffing

// diffResult partitions one sync into its write classes.
type diffResult struct {
	// Added are chapters present upstream with no stored counterpart.
	Added []chapter.Upsert
	// Changed are stored chapters whose upstream representation drifted.
	Changed []chapter.Upsert
	// Missing are stored rows the upstream no longer reports.
	Missing []*chapter.SourcedChapter
}

// diffChapters compares the stored per-source state against a normalized
// fetch. Identity is the chapter key; everything else is payload.
func diffChapters(stored []*chapter.SourcedChapter, incoming []chapter.Upsert) diffResult {
	storedByKey := make(map[chapternum.Key]*chapter.SourcedChapter, len(stored))
	for _, row := range stored {
		storedByKey[row.Key] = row
	}

	var result diffResult
	incomingKeys := make(map[chapternum.Key]bool, len(incoming))

	for _, upsert := range incoming {
		incomingKeys[upsert.Key] = true

		existing, ok := storedByKey[upsert.Key]
		if !ok {
			result.Added = append(result.Added, upsert)
			continue
		}
		if chapterChanged(existing, &upsert) {
			result.Changed = append(result.Changed, upsert)
		}
	}

	for _, row := range stored {
		if !incomingKeys[row.Key] {
			result.Missing = append(result.Missing, row)
		}
	}

	return result
}

// chapterChanged reports whether the upstream payload drifted from the
// stored row in any field worth rewriting.
func chapterChanged(stored *chapter.SourcedChapter, incoming *chapter.Upsert) bool {
	return stored.Title != incoming.Title ||
		stored.Volume != incoming.Volume ||
		stored.DisplayNumber != incoming.DisplayNumber ||
		stored.SourceChapterID != incoming.SourceChapterID ||
		stored.SourceChapterURL != incoming.SourceChapterURL
}

// missingFraction returns the share of stored chapters the upstream stopped
// reporting. Zero when nothing was stored.
func missingFraction(storedCount, missingCount int) float64 {
	if storedCount == 0 {
		return 0
	}
	return float64(missingCount) / float64(storedCount)
}
