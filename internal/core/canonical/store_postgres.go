// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package canonical

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/database/schema"
	"github.com/taibuivan/rensai/internal/platform/dberr"
	"github.com/taibuivan/rensai/internal/platform/postgres"
	"github.com/taibuivan/rensai/pkg/uuidv7"
)

// # Review Queue Store

// reviewStore implements the [ReviewStore] interface using pgx.
type reviewStore struct {
	pool *pgxpool.Pool
}

// NewReviewStore constructs a PostgreSQL backed review queue.
func NewReviewStore(pool *pgxpool.Pool) ReviewStore {
	return &reviewStore{pool: pool}
}

/*
Enqueue records a flagged pair. The partial unique index on open items
makes duplicate flags a no-op instead of a second queue entry.
*/
func (store *reviewStore) Enqueue(context context.Context, item *ReviewItem) error {
	rq := schema.SyncReviewQueue
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, 'open')
		ON CONFLICT DO NOTHING
	`,
		rq.Table,
		rq.ID, rq.SeriesID, rq.CandidateSeriesID, rq.Confidence, rq.Reason, rq.Status,
	)

	_, err := store.pool.Exec(context, query,
		uuidv7.New(), item.SeriesID, item.CandidateSeriesID, item.Confidence, item.Reason)
	if err != nil {
		return dberr.Wrap(err, "review enqueue")
	}

	return nil
}

// scanReviewItem hydrates one review row.
func scanReviewItem(row pgx.Row) (*ReviewItem, error) {
	var item ReviewItem
	err := row.Scan(
		&item.ID,
		&item.SeriesID,
		&item.CandidateSeriesID,
		&item.Confidence,
		&item.Reason,
		&item.Status,
		&item.CreatedAt,
		&item.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// reviewColumns is the stable select list for review queries.
func reviewColumns() string {
	rq := schema.SyncReviewQueue
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s",
		rq.ID, rq.SeriesID, rq.CandidateSeriesID, rq.Confidence, rq.Reason,
		rq.Status, rq.CreatedAt, rq.ResolvedAt)
}

/*
ListOpen returns open review items, oldest first.
*/
func (store *reviewStore) ListOpen(context context.Context, limit int) ([]*ReviewItem, error) {
	rq := schema.SyncReviewQueue
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = 'open'
		ORDER BY %s ASC
		LIMIT $1
	`, reviewColumns(), rq.Table, rq.Status, rq.CreatedAt)

	rows, err := store.pool.Query(context, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list open reviews: %w", err)
	}
	defer rows.Close()

	var items []*ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan review item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

/*
FindByID returns one review item.
*/
func (store *reviewStore) FindByID(context context.Context, id string) (*ReviewItem, error) {
	rq := schema.SyncReviewQueue
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, reviewColumns(), rq.Table, rq.ID)

	item, err := scanReviewItem(store.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("review item")
		}
		return nil, fmt.Errorf("postgres: failed to find review item: %w", err)
	}

	return item, nil
}

/*
Resolve closes a review item with the given verdict.
*/
func (store *reviewStore) Resolve(context context.Context, id string, status ReviewStatus) error {
	rq := schema.SyncReviewQueue
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = NOW()
		WHERE %s = $2 AND %s = 'open'
	`, rq.Table, rq.Status, rq.ResolvedAt, rq.ID, rq.Status)

	result, err := store.pool.Exec(context, query, status, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to resolve review item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.Conflict("Review item is not open")
	}

	return nil
}

/*
CountOpen returns the open review backlog size.
*/
func (store *reviewStore) CountOpen(context context.Context) (int, error) {
	rq := schema.SyncReviewQueue
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = 'open'`, rq.Table, rq.Status)

	var count int
	if err := store.pool.QueryRow(context, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: failed to count open reviews: %w", err)
	}

	return count, nil
}

// # Merge Store

// mergeStore implements the [MergeStore] interface using pgx.
type mergeStore struct {
	pool *pgxpool.Pool
}

// NewMergeStore constructs a PostgreSQL backed merge executor.
func NewMergeStore(pool *pgxpool.Pool) MergeStore {
	return &mergeStore{pool: pool}
}

/*
Merge collapses the merged work into the primary in one transaction.

Description: Both series advisory locks are taken in sorted ID order so two
concurrent merges touching the same pair can never deadlock. The statement
sequence keeps every invariant intact mid-transaction:

 1. Source links move to the primary.
 2. Chapter availability rows pointing at duplicate logical chapters are
    re-pointed at the primary's equivalent chapter, or tombstoned when the
    source already serves it there.
 3. Duplicate merged-side logical chapters are tombstoned in place; the
    rest re-parent to the primary.
 4. Follower counts aggregate and titles union onto the primary.
 5. The merged row becomes a one-hop alias and any of its own aliases are
    re-pointed at the primary, so no chain ever exceeds one hop.
 6. A merge event records the decision.
*/
func (store *mergeStore) Merge(context context.Context, primaryID, mergedID string, confidence float64, reason string) error {
	if primaryID == mergedID {
		return apperr.ValidationError("A series cannot be merged into itself")
	}

	tx, err := store.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback(context) }()

	// Sorted lock order prevents lock-ordering deadlocks between racers.
	first, second := primaryID, mergedID
	if second < first {
		first, second = second, first
	}
	if err := postgres.AcquireTxLock(context, tx, postgres.LockSeries, first); err != nil {
		return err
	}
	if err := postgres.AcquireTxLock(context, tx, postgres.LockSeries, second); err != nil {
		return err
	}

	done, err := store.checkMergeState(context, tx, primaryID, mergedID)
	if err != nil {
		return err
	}
	if done {
		return tx.Commit(context)
	}

	if err := store.reparent(context, tx, primaryID, mergedID); err != nil {
		return err
	}
	if err := store.aggregate(context, tx, primaryID, mergedID); err != nil {
		return err
	}
	if err := store.alias(context, tx, primaryID, mergedID); err != nil {
		return err
	}
	if err := store.recordEvent(context, tx, primaryID, mergedID, confidence, reason); err != nil {
		return err
	}

	if err := tx.Commit(context); err != nil {
		return fmt.Errorf("postgres: failed to commit merge: %w", err)
	}

	return nil
}

// checkMergeState validates the pair and detects an already applied merge.
func (store *mergeStore) checkMergeState(context context.Context, tx pgx.Tx, primaryID, mergedID string) (done bool, err error) {
	s := schema.SyncSeries
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, s.CanonicalSeriesID, s.Table, s.ID)

	var mergedCanonical *string
	if err := tx.QueryRow(context, query, mergedID).Scan(&mergedCanonical); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperr.NotFound("merged series")
		}
		return false, fmt.Errorf("postgres: failed to inspect merged series: %w", err)
	}

	if mergedCanonical != nil {
		if *mergedCanonical == primaryID {
			// Replay of an applied merge. Idempotent.
			return true, nil
		}
		return false, apperr.Conflict("Series is already merged into a different work")
	}

	var primaryCanonical *string
	if err := tx.QueryRow(context, query, primaryID).Scan(&primaryCanonical); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperr.NotFound("primary series")
		}
		return false, fmt.Errorf("postgres: failed to inspect primary series: %w", err)
	}
	if primaryCanonical != nil {
		return false, apperr.Conflict("Merge primary is itself an alias")
	}

	return false, nil
}

// reparent moves source links and logical chapters onto the primary.
func (store *mergeStore) reparent(context context.Context, tx pgx.Tx, primaryID, mergedID string) error {
	ss := schema.SyncSeriesSource
	lc := schema.SyncLogicalChapter
	cs := schema.SyncChapterSource

	linkQuery := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2`,
		ss.Table, ss.SeriesID, ss.UpdatedAt, ss.SeriesID)
	if _, err := tx.Exec(context, linkQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge source links")
	}

	// sameKey joins merged-side chapters to their primary-side equivalents.
	sameKey := fmt.Sprintf(
		"p.%s = $1 AND m.%s = $2 AND p.%s = m.%s AND p.%s = m.%s AND p.%s = m.%s",
		lc.SeriesID, lc.SeriesID,
		lc.NumberBand, lc.NumberBand, lc.NumberWhole, lc.NumberWhole, lc.NumberFrac, lc.NumberFrac,
	)

	// 2a. Availability rows on duplicate chapters move to the primary's
	// equivalent, unless the source already serves it there.
	repointQuery := fmt.Sprintf(`
		UPDATE %s cs SET %s = p.%s
		FROM %s m, %s p
		WHERE cs.%s = m.%s AND %s
		  AND NOT EXISTS (
			SELECT 1 FROM %s dup
			WHERE dup.%s = cs.%s AND dup.%s = p.%s
		  )
	`,
		cs.Table, cs.ChapterID, lc.ID,
		lc.Table, lc.Table,
		cs.ChapterID, lc.ID, sameKey,
		cs.Table,
		cs.SeriesSourceID, cs.SeriesSourceID, cs.ChapterID, lc.ID,
	)
	if _, err := tx.Exec(context, repointQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge chapter availability")
	}

	// 2b. Whatever still points at a duplicate chapter would collide; it is
	// redundant with the primary-side row, so tombstone it.
	orphanQuery := fmt.Sprintf(`
		UPDATE %s cs SET %s = FALSE, %s = NOW()
		FROM %s m, %s p
		WHERE cs.%s = m.%s AND %s AND cs.%s IS NULL
	`,
		cs.Table, cs.IsAvailable, cs.DeletedAt,
		lc.Table, lc.Table,
		cs.ChapterID, lc.ID, sameKey, cs.DeletedAt,
	)
	if _, err := tx.Exec(context, orphanQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge redundant availability")
	}

	// 3. Duplicate merged-side chapters tombstone in place; unique ones
	// re-parent to the primary.
	tombstoneQuery := fmt.Sprintf(`
		UPDATE %s m SET %s = NOW()
		FROM %s p
		WHERE %s AND m.%s IS NULL
	`,
		lc.Table, lc.DeletedAt,
		lc.Table,
		sameKey, lc.DeletedAt,
	)
	if _, err := tx.Exec(context, tombstoneQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge duplicate chapters")
	}

	moveQuery := fmt.Sprintf(`
		UPDATE %s m SET %s = $1
		WHERE m.%s = $2
		  AND NOT EXISTS (
			SELECT 1 FROM %s p WHERE %s
		  )
	`,
		lc.Table, lc.SeriesID,
		lc.SeriesID,
		lc.Table, sameKey,
	)
	if _, err := tx.Exec(context, moveQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge chapters")
	}

	return nil
}

// aggregate folds the merged row's counters and titles into the primary.
func (store *mergeStore) aggregate(context context.Context, tx pgx.Tx, primaryID, mergedID string) error {
	s := schema.SyncSeries
	query := fmt.Sprintf(`
		UPDATE %s p SET
			%s = p.%s + m.%s,
			%s = ARRAY(
				SELECT DISTINCT t
				FROM unnest(p.%s || m.%s || m.%s) t
				WHERE t <> p.%s
			),
			%s = NOW()
		FROM %s m
		WHERE p.%s = $1 AND m.%s = $2
	`,
		s.Table,
		s.FollowerCount, s.FollowerCount, s.FollowerCount,
		s.AlternativeTitles,
		s.AlternativeTitles, s.Title, s.AlternativeTitles,
		s.Title,
		s.UpdatedAt,
		s.Table,
		s.ID, s.ID,
	)

	if _, err := tx.Exec(context, query, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge aggregation")
	}

	return nil
}

// alias converts the merged row into a one-hop alias and collapses any
// chains pointing at it.
func (store *mergeStore) alias(context context.Context, tx pgx.Tx, primaryID, mergedID string) error {
	s := schema.SyncSeries

	aliasQuery := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = FALSE, %s = NOW() WHERE %s = $2
	`, s.Table, s.CanonicalSeriesID, s.NeedsReview, s.UpdatedAt, s.ID)
	if _, err := tx.Exec(context, aliasQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge alias")
	}

	chainQuery := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2
	`, s.Table, s.CanonicalSeriesID, s.UpdatedAt, s.CanonicalSeriesID)
	if _, err := tx.Exec(context, chainQuery, primaryID, mergedID); err != nil {
		return dberr.Wrap(err, "merge chain collapse")
	}

	return nil
}

// recordEvent writes the merge audit row.
func (store *mergeStore) recordEvent(context context.Context, tx pgx.Tx, primaryID, mergedID string, confidence float64, reason string) error {
	me := schema.SyncMergeEvent
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, me.Table, me.ID, me.PrimarySeriesID, me.MergedSeriesID, me.Confidence, me.Reason, me.DecidedAt)

	if _, err := tx.Exec(context, query, uuidv7.New(), primaryID, mergedID, confidence, reason); err != nil {
		return dberr.Wrap(err, "merge event")
	}

	return nil
}
