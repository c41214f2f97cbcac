// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/rensai/internal/core/chapter"
	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/pkg/chapternum"
)

// # Fakes

type fakeClient struct {
	chapters []source.RawChapter
	err      error
}

func (f *fakeClient) FetchChapters(_ context.Context, _, _ string) ([]source.RawChapter, error) {
	return f.chapters, f.err
}

// fakeChapterStore keeps per-source state in memory and records every
// applied change set so tests can assert on exact write behavior.
type fakeChapterStore struct {
	active  []*chapter.SourcedChapter
	applied []chapter.ChangeSet
}

func (f *fakeChapterStore) ListActiveBySource(_ context.Context, _ string) ([]*chapter.SourcedChapter, error) {
	return f.active, nil
}

func (f *fakeChapterStore) ApplyBatch(ctx context.Context, set chapter.ChangeSet, commitCheck chapter.CommitCheck) error {
	if commitCheck != nil {
		if err := commitCheck(ctx); err != nil {
			return err
		}
	}
	f.applied = append(f.applied, set)

	// Mirror the real store: upserts become active rows keyed by number.
	for _, upsert := range set.Upserts {
		var existing *chapter.SourcedChapter
		for _, row := range f.active {
			if row.Key == upsert.Key {
				existing = row
				break
			}
		}
		if existing == nil {
			existing = &chapter.SourcedChapter{
				ChapterSourceID: "cs-" + upsert.DisplayNumber,
				ChapterID:       "ch-" + upsert.DisplayNumber,
				Key:             upsert.Key,
			}
			f.active = append(f.active, existing)
		}
		existing.DisplayNumber = upsert.DisplayNumber
		existing.Title = upsert.Title
		existing.Volume = upsert.Volume
		existing.SourceChapterID = upsert.SourceChapterID
		existing.SourceChapterURL = upsert.SourceChapterURL
	}

	for _, id := range set.TombstoneChapterSourceIDs {
		remaining := f.active[:0]
		for _, row := range f.active {
			if row.ChapterSourceID != id {
				remaining = append(remaining, row)
			}
		}
		f.active = remaining
	}

	return nil
}

func (f *fakeChapterStore) CountActiveBySeries(_ context.Context, _ string) (int, error) {
	return len(f.active), nil
}

func (f *fakeChapterStore) totalUpserts() int {
	total := 0
	for _, set := range f.applied {
		total += len(set.Upserts)
	}
	return total
}

type fakeSourceRepo struct {
	series.SourceRepository
	successes int
}

func (f *fakeSourceRepo) RecordSuccess(_ context.Context, _ string, _ time.Time) error {
	f.successes++
	return nil
}

func testLink() *series.SeriesSource {
	return &series.SeriesSource{
		ID:         "ss-1",
		SeriesID:   "s-1",
		SourceName: "mangazone",
		SourceID:   "mz-42",
	}
}

func newTestProcessor(client *fakeClient, store *fakeChapterStore, repo *fakeSourceRepo) *Processor {
	return NewProcessor(client, store, repo, slog.New(slog.DiscardHandler))
}

// # Normalization

func TestNormalizeBatch(t *testing.T) {
	t.Run("should drop entries with unusable URLs", func(t *testing.T) {
		upserts, report := normalizeBatch([]source.RawChapter{
			{Number: "1", URL: "https://example.com/c/1"},
			{Number: "2", URL: "not a url at all"},
		})

		assert.Len(t, upserts, 1)
		assert.Equal(t, 1, report.Dropped)
	})

	t.Run("should deduplicate entries collapsing to one key first-wins", func(t *testing.T) {
		upserts, report := normalizeBatch([]source.RawChapter{
			{Number: "Chapter 10", Title: "First", URL: "https://example.com/c/10"},
			{Number: "ch. 10", Title: "Second", URL: "https://example.com/c/10-dup"},
		})

		require.Len(t, upserts, 1)
		assert.Equal(t, "First", upserts[0].Title)
		assert.Equal(t, 1, report.Duplicates)
	})

	t.Run("should restore canonical order and flag unsorted input", func(t *testing.T) {
		upserts, report := normalizeBatch([]source.RawChapter{
			{Number: "3", URL: "https://example.com/c/3"},
			{Number: "1", URL: "https://example.com/c/1"},
			{Number: "2.5", URL: "https://example.com/c/2.5"},
		})

		require.Len(t, upserts, 3)
		assert.True(t, report.WasUnsorted)
		assert.Equal(t, "1", upserts[0].DisplayNumber)
		assert.Equal(t, "2.5", upserts[1].DisplayNumber)
		assert.Equal(t, "3", upserts[2].DisplayNumber)
	})
}

// # Diffing

func TestDiffChapters(t *testing.T) {
	stored := []*chapter.SourcedChapter{
		{ChapterSourceID: "cs-1", Key: chapternum.Normalize("1"), DisplayNumber: "1", Title: "Old Title", SourceChapterURL: "https://example.com/c/1"},
		{ChapterSourceID: "cs-2", Key: chapternum.Normalize("2"), DisplayNumber: "2", SourceChapterURL: "https://example.com/c/2"},
	}

	incoming := []chapter.Upsert{
		{Key: chapternum.Normalize("1"), DisplayNumber: "1", Title: "New Title", SourceChapterURL: "https://example.com/c/1"},
		{Key: chapternum.Normalize("3"), DisplayNumber: "3", SourceChapterURL: "https://example.com/c/3"},
	}

	result := diffChapters(stored, incoming)

	require.Len(t, result.Added, 1)
	assert.Equal(t, "3", result.Added[0].DisplayNumber)

	require.Len(t, result.Changed, 1)
	assert.Equal(t, "New Title", result.Changed[0].Title)

	require.Len(t, result.Missing, 1)
	assert.Equal(t, "cs-2", result.Missing[0].ChapterSourceID)
}

// # Sync Pipeline

func TestProcessorSync(t *testing.T) {
	t.Run("should ingest new chapters and record success", func(t *testing.T) {
		client := &fakeClient{chapters: []source.RawChapter{
			{Number: "1", Title: "Dawn", URL: "https://example.com/c/1", SourceChapterID: "r1"},
			{Number: "2", Title: "Dusk", URL: "https://example.com/c/2", SourceChapterID: "r2"},
		}}
		store := &fakeChapterStore{}
		repo := &fakeSourceRepo{}

		outcome, err := newTestProcessor(client, store, repo).Sync(context.Background(), testLink(), nil)
		require.NoError(t, err)

		assert.Equal(t, 2, outcome.Fetched)
		assert.Equal(t, 2, outcome.Added)
		assert.Equal(t, 0, outcome.Removed)
		assert.Equal(t, 1, repo.successes)
		assert.Len(t, store.active, 2)
	})

	t.Run("should be idempotent on replay", func(t *testing.T) {
		client := &fakeClient{chapters: []source.RawChapter{
			{Number: "1", Title: "Dawn", URL: "https://example.com/c/1", SourceChapterID: "r1"},
		}}
		store := &fakeChapterStore{}
		repo := &fakeSourceRepo{}
		processor := newTestProcessor(client, store, repo)

		_, err := processor.Sync(context.Background(), testLink(), nil)
		require.NoError(t, err)
		firstWrites := store.totalUpserts()

		outcome, err := processor.Sync(context.Background(), testLink(), nil)
		require.NoError(t, err)

		assert.Equal(t, 0, outcome.Added)
		assert.Equal(t, 0, outcome.Changed)
		assert.Equal(t, firstWrites, store.totalUpserts())
	})

	t.Run("should tombstone vanished chapters below the guard threshold", func(t *testing.T) {
		store := &fakeChapterStore{active: []*chapter.SourcedChapter{
			{ChapterSourceID: "cs-1", Key: chapternum.Normalize("1"), DisplayNumber: "1", SourceChapterID: "r1", SourceChapterURL: "https://example.com/c/1"},
			{ChapterSourceID: "cs-2", Key: chapternum.Normalize("2"), DisplayNumber: "2", SourceChapterID: "r2", SourceChapterURL: "https://example.com/c/2"},
			{ChapterSourceID: "cs-3", Key: chapternum.Normalize("3"), DisplayNumber: "3", SourceChapterID: "r3", SourceChapterURL: "https://example.com/c/3"},
		}}
		client := &fakeClient{chapters: []source.RawChapter{
			{Number: "1", URL: "https://example.com/c/1", SourceChapterID: "r1"},
			{Number: "2", URL: "https://example.com/c/2", SourceChapterID: "r2"},
		}}
		repo := &fakeSourceRepo{}

		outcome, err := newTestProcessor(client, store, repo).Sync(context.Background(), testLink(), nil)
		require.NoError(t, err)

		assert.Equal(t, 1, outcome.Removed)
		assert.False(t, outcome.SuspectedUpstreamError)
		assert.Len(t, store.active, 2)
	})

	t.Run("should refuse deletions when most chapters vanish", func(t *testing.T) {
		store := &fakeChapterStore{active: []*chapter.SourcedChapter{
			{ChapterSourceID: "cs-1", Key: chapternum.Normalize("1"), DisplayNumber: "1", SourceChapterID: "r1", SourceChapterURL: "https://example.com/c/1"},
			{ChapterSourceID: "cs-2", Key: chapternum.Normalize("2"), DisplayNumber: "2", SourceChapterID: "r2", SourceChapterURL: "https://example.com/c/2"},
			{ChapterSourceID: "cs-3", Key: chapternum.Normalize("3"), DisplayNumber: "3", SourceChapterID: "r3", SourceChapterURL: "https://example.com/c/3"},
			{ChapterSourceID: "cs-4", Key: chapternum.Normalize("4"), DisplayNumber: "4", SourceChapterID: "r4", SourceChapterURL: "https://example.com/c/4"},
		}}
		client := &fakeClient{chapters: []source.RawChapter{
			{Number: "1", URL: "https://example.com/c/1", SourceChapterID: "r1"},
		}}
		repo := &fakeSourceRepo{}

		outcome, err := newTestProcessor(client, store, repo).Sync(context.Background(), testLink(), nil)
		require.NoError(t, err)

		assert.True(t, outcome.SuspectedUpstreamError)
		assert.Equal(t, 0, outcome.Removed)
		assert.Len(t, store.active, 4, "no tombstones may be applied on a suspected upstream error")
		assert.Equal(t, 1, repo.successes, "additions and updates still apply")
	})

	t.Run("should never tombstone on an incremental sync", func(t *testing.T) {
		store := &fakeChapterStore{active: []*chapter.SourcedChapter{
			{ChapterSourceID: "cs-1", Key: chapternum.Normalize("1"), DisplayNumber: "1", SourceChapterID: "r1", SourceChapterURL: "https://example.com/c/1"},
			{ChapterSourceID: "cs-2", Key: chapternum.Normalize("2"), DisplayNumber: "2", SourceChapterID: "r2", SourceChapterURL: "https://example.com/c/2"},
		}}
		client := &fakeClient{chapters: []source.RawChapter{
			{Number: "3", URL: "https://example.com/c/3", SourceChapterID: "r3"},
		}}
		repo := &fakeSourceRepo{}

		outcome, err := newTestProcessor(client, store, repo).SyncIncremental(context.Background(), testLink(), nil)
		require.NoError(t, err)

		assert.Equal(t, 1, outcome.Added)
		assert.Equal(t, 0, outcome.Removed)
		assert.False(t, outcome.SuspectedUpstreamError, "a partial batch is not evidence of an upstream error")
		assert.Len(t, store.active, 3)
	})

	t.Run("should propagate fetch errors without writing", func(t *testing.T) {
		client := &fakeClient{err: &source.NetworkError{Cause: context.DeadlineExceeded}}
		store := &fakeChapterStore{}
		repo := &fakeSourceRepo{}

		_, err := newTestProcessor(client, store, repo).Sync(context.Background(), testLink(), nil)

		require.Error(t, err)
		assert.True(t, source.IsNetwork(err))
		assert.Empty(t, store.applied)
		assert.Equal(t, 0, repo.successes)
	})

	t.Run("should forward the commit check to every chunk", func(t *testing.T) {
		client := &fakeClient{chapters: []source.RawChapter{
			{Number: "1", URL: "https://example.com/c/1", SourceChapterID: "r1"},
		}}
		store := &fakeChapterStore{}
		repo := &fakeSourceRepo{}

		checks := 0
		_, err := newTestProcessor(client, store, repo).Sync(context.Background(), testLink(), func(context.Context) error {
			checks++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, checks)
	})
}
