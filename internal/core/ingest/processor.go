// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ingest turns raw upstream chapter fetches into stored state.

The processor is the write path of one sync job: fetch, normalize, diff
against the stored per-source state, then apply the difference in chunked
transactions. It is deliberately idempotent; replaying the same fetch
produces zero writes on the second pass.
*/
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/rensai/internal/core/chapter"
	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/internal/platform/constants"
)

// Outcome is the per-sync result summary, logged and surfaced to the
// operational endpoint by the worker.
type Outcome struct {
	Fetched int
	Added   int
	Changed int
	Removed int

	// SuspectedUpstreamError is set when more than half of the stored
	// chapters vanished in one fetch. No deletions were applied.
	SuspectedUpstreamError bool
}

// Processor executes the ingestion path for one source link.
type Processor struct {
	client   source.Client
	chapters chapter.Store
	sources  series.SourceRepository
	logger   *slog.Logger
}

// NewProcessor wires the ingestion processor.
func NewProcessor(client source.Client, chapters chapter.Store, sources series.SourceRepository, logger *slog.Logger) *Processor {
	return &Processor{
		client:   client,
		chapters: chapters,
		sources:  sources,
		logger:   logger,
	}
}

/*
Sync runs one full chapter sync for a source link.

Description: The pipeline is fetch, normalize, diff, apply. Writes are
chunked so that a ten-thousand-chapter backfill never holds one transaction
open across the whole batch; each chunk commits independently and a failure
mid-batch leaves earlier chunks durable. Re-running the job resumes where
it left off because the diff re-computes against what already committed.

Tombstones are applied after all upserts, and only when the vanished share
of stored chapters stays at or below the suspected-error threshold. Above
it, the fetch is treated as an upstream glitch: additions and updates still
apply, deletions do not, and the outcome flags the anomaly.

The commitCheck is forwarded to every chunk transaction so the queue's
fencing token is validated immediately before each COMMIT.

Parameters:
  - ctx: context.Context (job-scoped deadline)
  - link: *series.SeriesSource (the source link to sync)
  - commitCheck: chapter.CommitCheck (nil to skip fencing)

Returns:
  - Outcome: Write summary
  - error: Fetch, storage, or fencing failure (classified by the caller)
*/
func (processor *Processor) Sync(ctx context.Context, link *series.SeriesSource, commitCheck chapter.CommitCheck) (Outcome, error) {
	return processor.run(ctx, link, commitCheck, true)
}

/*
SyncIncremental runs one incremental chapter sync for a source link.

Description: Same pipeline as [Processor.Sync] minus the deletion pass. An
incremental fetch may cover only the newest chapters, so absence from the
batch proves nothing; upserts apply, tombstones never do.
*/
func (processor *Processor) SyncIncremental(ctx context.Context, link *series.SeriesSource, commitCheck chapter.CommitCheck) (Outcome, error) {
	return processor.run(ctx, link, commitCheck, false)
}

func (processor *Processor) run(ctx context.Context, link *series.SeriesSource, commitCheck chapter.CommitCheck, full bool) (Outcome, error) {
	var outcome Outcome

	raw, err := processor.client.FetchChapters(ctx, link.SourceName, link.SourceID)
	if err != nil {
		return outcome, err
	}
	outcome.Fetched = len(raw)

	incoming, report := normalizeBatch(raw)
	if report.Dropped > 0 || report.Duplicates > 0 || report.WasUnsorted {
		processor.logger.Warn("sync_normalization_issues",
			slog.String("series_source_id", link.ID),
			slog.String("source", link.SourceName),
			slog.Int("dropped", report.Dropped),
			slog.Int("duplicates", report.Duplicates),
			slog.Bool("was_unsorted", report.WasUnsorted),
		)
	}

	stored, err := processor.chapters.ListActiveBySource(ctx, link.ID)
	if err != nil {
		return outcome, err
	}

	diff := diffChapters(stored, incoming)
	outcome.Added = len(diff.Added)
	outcome.Changed = len(diff.Changed)

	// Deletion guard. Incremental batches never tombstone, and a full fetch
	// that suddenly reports half its catalog gone is far more likely
	// mid-outage than mid-purge.
	var tombstones []*chapter.SourcedChapter
	if full {
		tombstones = diff.Missing
	}
	if fraction := missingFraction(len(stored), len(tombstones)); fraction > constants.SuspectedErrorMissingFraction {
		outcome.SuspectedUpstreamError = true
		tombstones = nil
		processor.logger.Warn("sync_suspected_upstream_error",
			slog.String("series_source_id", link.ID),
			slog.String("source", link.SourceName),
			slog.Int("stored", len(stored)),
			slog.Int("missing", len(diff.Missing)),
			slog.Float64("missing_fraction", fraction),
		)
	}
	outcome.Removed = len(tombstones)

	if err := processor.apply(ctx, link, diff, tombstones, commitCheck); err != nil {
		return outcome, err
	}

	if err := processor.sources.RecordSuccess(ctx, link.ID, time.Now().UTC()); err != nil {
		return outcome, err
	}

	processor.logger.Info("sync_completed",
		slog.String("series_source_id", link.ID),
		slog.String("source", link.SourceName),
		slog.Int("fetched", outcome.Fetched),
		slog.Int("added", outcome.Added),
		slog.Int("changed", outcome.Changed),
		slog.Int("removed", outcome.Removed),
	)

	return outcome, nil
}

// apply writes the diff in chunked transactions: upsert chunks first, then
// one final chunk carrying the tombstones.
func (processor *Processor) apply(ctx context.Context, link *series.SeriesSource, diff diffResult, tombstones []*chapter.SourcedChapter, commitCheck chapter.CommitCheck) error {
	upserts := make([]chapter.Upsert, 0, len(diff.Added)+len(diff.Changed))
	upserts = append(upserts, diff.Added...)
	upserts = append(upserts, diff.Changed...)

	for start := 0; start < len(upserts); start += constants.MaxChaptersPerSync {
		end := min(start+constants.MaxChaptersPerSync, len(upserts))

		set := chapter.ChangeSet{
			SeriesID:       link.SeriesID,
			SeriesSourceID: link.ID,
			Upserts:        upserts[start:end],
		}
		if err := processor.chapters.ApplyBatch(ctx, set, commitCheck); err != nil {
			return err
		}
	}

	if len(tombstones) == 0 {
		return nil
	}

	ids := make([]string, len(tombstones))
	for i, row := range tombstones {
		ids[i] = row.ChapterSourceID
	}

	set := chapter.ChangeSet{
		SeriesID:                  link.SeriesID,
		SeriesSourceID:            link.ID,
		TombstoneChapterSourceIDs: ids,
	}
	return processor.chapters.ApplyBatch(ctx, set, commitCheck)
}
