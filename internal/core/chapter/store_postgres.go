// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/rensai/internal/platform/database/schema"
	"github.com/taibuivan/rensai/internal/platform/dberr"
	"github.com/taibuivan/rensai/internal/platform/postgres"
	"github.com/taibuivan/rensai/pkg/uuidv7"
)

// # PostgreSQL Store

// store implements the [Store] interface using pgx.
type store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed chapter store.
func NewStore(pool *pgxpool.Pool) Store {
	return &store{pool: pool}
}

/*
ListActiveBySource returns the active per-source chapter state, joined with
each logical chapter's ordering key.
*/
func (store *store) ListActiveBySource(context context.Context, seriesSourceID string) ([]*SourcedChapter, error) {
	cs := schema.SyncChapterSource
	lc := schema.SyncLogicalChapter

	query := fmt.Sprintf(`
		SELECT
			cs.%s, cs.%s,
			lc.%s, lc.%s, lc.%s,
			lc.%s, lc.%s, lc.%s,
			cs.%s, cs.%s, cs.%s
		FROM %s cs
		JOIN %s lc ON lc.%s = cs.%s
		WHERE cs.%s = $1 AND cs.%s IS NULL
	`,
		cs.ID, cs.ChapterID,
		lc.NumberBand, lc.NumberWhole, lc.NumberFrac,
		lc.DisplayNumber, lc.ChapterTitle, lc.VolumeNumber,
		cs.SourceChapterID, cs.SourceChapterURL, cs.SourcePublishedAt,
		cs.Table,
		lc.Table, lc.ID, cs.ChapterID,
		cs.SeriesSourceID, cs.DeletedAt,
	)

	rows, err := store.pool.Query(context, query, seriesSourceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list active chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*SourcedChapter
	for rows.Next() {
		var sourced SourcedChapter
		err := rows.Scan(
			&sourced.ChapterSourceID,
			&sourced.ChapterID,
			&sourced.Key.Band,
			&sourced.Key.Whole,
			&sourced.Key.Frac,
			&sourced.DisplayNumber,
			&sourced.Title,
			&sourced.Volume,
			&sourced.SourceChapterID,
			&sourced.SourceChapterURL,
			&sourced.SourcePublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan active chapter: %w", err)
		}
		chapters = append(chapters, &sourced)
	}

	return chapters, rows.Err()
}

/*
ApplyBatch applies one diff chunk in a single transaction.

Description: The transaction takes the series-source advisory lock first;
concurrent writers for the same link serialize here. Both upserts rely on
unique constraints as the storage-layer backstop, so even if the lock
discipline were ever violated the database still refuses duplicate
identities. The commitCheck runs last, after every statement, immediately
before COMMIT.
*/
func (store *store) ApplyBatch(context context.Context, set ChangeSet, commitCheck CommitCheck) error {
	if set.Empty() && commitCheck == nil {
		return nil
	}

	tx, err := store.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin chapter batch: %w", err)
	}
	defer func() { _ = tx.Rollback(context) }()

	if err := postgres.AcquireTxLock(context, tx, postgres.LockSeriesSource, set.SeriesSourceID); err != nil {
		return err
	}

	for i := range set.Upserts {
		if err := store.applyUpsert(context, tx, &set, &set.Upserts[i]); err != nil {
			return err
		}
	}

	for _, chapterSourceID := range set.TombstoneChapterSourceIDs {
		if err := store.applyTombstone(context, tx, chapterSourceID); err != nil {
			return err
		}
	}

	if commitCheck != nil {
		if err := commitCheck(context); err != nil {
			return err
		}
	}

	if err := tx.Commit(context); err != nil {
		return fmt.Errorf("postgres: failed to commit chapter batch: %w", err)
	}

	return nil
}

// applyUpsert creates or refreshes one logical chapter and its source row.
func (store *store) applyUpsert(context context.Context, tx pgx.Tx, set *ChangeSet, upsert *Upsert) error {
	lc := schema.SyncLogicalChapter

	// Logical chapter: identity is (series, band, whole, frac). A tombstoned
	// chapter that re-appears is revived in place, keeping FirstSeenAt.
	// PublishedAt keeps the earliest non-null value any source reported.
	chapterQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (%s, %s, %s, %s) DO UPDATE SET
			%s = NULL,
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), %s.%s),
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), %s.%s),
			%s = LEAST(COALESCE(%s.%s, EXCLUDED.%s), COALESCE(EXCLUDED.%s, %s.%s))
		RETURNING %s
	`,
		lc.Table,
		lc.ID, lc.SeriesID, lc.NumberBand, lc.NumberWhole, lc.NumberFrac,
		lc.DisplayNumber, lc.ChapterTitle, lc.VolumeNumber, lc.PublishedAt,
		lc.SeriesID, lc.NumberBand, lc.NumberWhole, lc.NumberFrac,
		lc.DeletedAt,
		lc.ChapterTitle, lc.ChapterTitle, lc.Table, lc.ChapterTitle,
		lc.VolumeNumber, lc.VolumeNumber, lc.Table, lc.VolumeNumber,
		lc.PublishedAt, lc.Table, lc.PublishedAt, lc.PublishedAt, lc.PublishedAt, lc.Table, lc.PublishedAt,
		lc.ID,
	)

	var chapterID string
	err := tx.QueryRow(context, chapterQuery,
		uuidv7.New(),
		set.SeriesID,
		upsert.Key.Band,
		upsert.Key.Whole,
		upsert.Key.Frac,
		upsert.DisplayNumber,
		upsert.Title,
		upsert.Volume,
		upsert.SourcePublishedAt,
	).Scan(&chapterID)
	if err != nil {
		return dberr.Wrap(err, fmt.Sprintf("logical chapter upsert (%s)", upsert.DisplayNumber))
	}

	cs := schema.SyncChapterSource

	// Source availability: (series source, chapter) is unique, so a re-sync
	// of a known chapter refreshes the row and clears any tombstone.
	sourceQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = TRUE,
			%s = NULL
	`,
		cs.Table,
		cs.ID, cs.ChapterID, cs.SeriesSourceID, cs.SourceChapterID, cs.SourceChapterURL, cs.IsAvailable, cs.SourcePublishedAt,
		cs.SeriesSourceID, cs.ChapterID,
		cs.SourceChapterID, cs.SourceChapterID,
		cs.SourceChapterURL, cs.SourceChapterURL,
		cs.SourcePublishedAt, cs.SourcePublishedAt, cs.Table, cs.SourcePublishedAt,
		cs.IsAvailable,
		cs.DeletedAt,
	)

	_, err = tx.Exec(context, sourceQuery,
		uuidv7.New(),
		chapterID,
		set.SeriesSourceID,
		upsert.SourceChapterID,
		upsert.SourceChapterURL,
		upsert.SourcePublishedAt,
	)
	if err != nil {
		return dberr.Wrap(err, fmt.Sprintf("chapter source upsert (%s)", upsert.DisplayNumber))
	}

	return nil
}

// applyTombstone marks one source row unavailable, then tombstones the
// logical chapter only when no other active source still serves it.
func (store *store) applyTombstone(context context.Context, tx pgx.Tx, chapterSourceID string) error {
	cs := schema.SyncChapterSource
	lc := schema.SyncLogicalChapter

	sourceQuery := fmt.Sprintf(`
		UPDATE %s SET %s = FALSE, %s = NOW()
		WHERE %s = $1 AND %s IS NULL
		RETURNING %s
	`,
		cs.Table, cs.IsAvailable, cs.DeletedAt,
		cs.ID, cs.DeletedAt,
		cs.ChapterID,
	)

	var chapterID string
	if err := tx.QueryRow(context, sourceQuery, chapterSourceID).Scan(&chapterID); err != nil {
		// Already tombstoned by a concurrent or replayed run. Idempotent.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return dberr.Wrap(err, "chapter source tombstone")
	}

	chapterQuery := fmt.Sprintf(`
		UPDATE %s SET %s = NOW()
		WHERE %s = $1
		  AND %s IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM %s other
			WHERE other.%s = $1 AND other.%s IS NULL
		  )
	`,
		lc.Table, lc.DeletedAt,
		lc.ID,
		lc.DeletedAt,
		cs.Table,
		cs.ChapterID, cs.DeletedAt,
	)

	if _, err := tx.Exec(context, chapterQuery, chapterID); err != nil {
		return dberr.Wrap(err, "logical chapter tombstone")
	}

	return nil
}

/*
CountActiveBySeries returns the number of active logical chapters a series
has.
*/
func (store *store) CountActiveBySeries(context context.Context, seriesID string) (int, error) {
	lc := schema.SyncLogicalChapter
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND %s IS NULL`,
		lc.Table, lc.SeriesID, lc.DeletedAt)

	var count int
	if err := store.pool.QueryRow(context, query, seriesID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: failed to count active chapters: %w", err)
	}

	return count, nil
}
