// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package series provides the PostgreSQL implementation for canonical works
and their source links.

It leans on Postgres features the sync pipeline depends on:
  - Unique constraints as the storage-layer backstop for racing workers.
  - 'ON CONFLICT DO NOTHING' find-or-create for idempotent linking.
  - CASE-based tier staleness selection in a single round-trip.
  - LEAST/GREATEST clamping so trust scores never leave [0.5, 1.0] even
    under concurrent updates.
*/
package series

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/constants"
	"github.com/taibuivan/rensai/internal/platform/database/schema"
	"github.com/taibuivan/rensai/internal/platform/dberr"
)

// # PostgreSQL Repositories

// repository implements the [Repository] interface using pgx.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed Series store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// seriesColumns is the stable select list shared by all Series queries.
func seriesColumns() string {
	s := schema.SyncSeries
	return strings.Join([]string{
		s.ID, s.Title, s.AlternativeTitles, s.Creators, s.Language,
		s.PublicationYear, s.Status, s.MetadataSchemaVersion, s.MetadataRank,
		s.FollowerCount, s.NeedsReview, s.CanonicalSeriesID, s.CreatedAt, s.UpdatedAt,
	}, ", ")
}

// scanSeries hydrates one Series row.
func scanSeries(row pgx.Row) (*Series, error) {
	var s Series
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.AlternativeTitles,
		&s.Creators,
		&s.Language,
		&s.PublicationYear,
		&s.Status,
		&s.MetadataSchemaVersion,
		&s.MetadataRank,
		&s.FollowerCount,
		&s.NeedsReview,
		&s.CanonicalSeriesID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

/*
FindByID returns the Series with the given unique identifier.
*/
func (repository *repository) FindByID(context context.Context, id string) (*Series, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		seriesColumns(), schema.SyncSeries.Table, schema.SyncSeries.ID)

	found, err := scanSeries(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("series")
		}
		return nil, fmt.Errorf("postgres: failed to find series by id: %w", err)
	}

	return found, nil
}

/*
Create persists a new canonical Series row.
*/
func (repository *repository) Create(context context.Context, s *Series) error {
	table := schema.SyncSeries
	query := fmt.Sprintf(`
		INSERT INTO %s (
			%s, %s, %s, %s, %s, %s,
			%s, %s, %s, %s, %s, %s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		table.Table,
		table.ID, table.Title, table.AlternativeTitles, table.Creators, table.Language, table.PublicationYear,
		table.Status, table.MetadataSchemaVersion, table.MetadataRank, table.FollowerCount, table.NeedsReview, table.CanonicalSeriesID,
	)

	_, err := repository.pool.Exec(context, query,
		s.ID,
		s.Title,
		s.AlternativeTitles,
		s.Creators,
		s.Language,
		s.PublicationYear,
		s.Status,
		s.MetadataSchemaVersion,
		s.MetadataRank,
		s.FollowerCount,
		s.NeedsReview,
		s.CanonicalSeriesID,
	)
	if err != nil {
		return dberr.Wrap(err, "series create")
	}

	return nil
}

/*
ListCanonicalCandidates returns canonical Series matching any normalized
title token.

Description: This is a coarse pre-filter — each token is matched with ILIKE
against the title and the alternative-titles array. The engine re-scores the
survivors precisely, so false positives here only cost CPU, never accuracy.
*/
func (repository *repository) ListCanonicalCandidates(context context.Context, tokens []string, limit int) ([]*Series, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	table := schema.SyncSeries

	// Candidate token filter construction
	var conditions []string
	var args []any
	argID := 1

	for _, token := range tokens {
		pattern := "%" + token + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(%s ILIKE $%d OR EXISTS (SELECT 1 FROM unnest(%s) alt WHERE alt ILIKE $%d))",
			table.Title, argID, table.AlternativeTitles, argID,
		))
		args = append(args, pattern)
		argID++
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s IS NULL AND (%s)
		LIMIT $%d
	`,
		seriesColumns(), table.Table,
		table.CanonicalSeriesID, strings.Join(conditions, " OR "),
		argID,
	)
	args = append(args, limit)

	rows, err := repository.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list series candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*Series
	for rows.Next() {
		candidate, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan series candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}

	return candidates, rows.Err()
}

/*
SetNeedsReview updates the manual-review flag on a Series.
*/
func (repository *repository) SetNeedsReview(context context.Context, id string, needsReview bool) error {
	table := schema.SyncSeries
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2`,
		table.Table, table.NeedsReview, table.UpdatedAt, table.ID)

	result, err := repository.pool.Exec(context, query, needsReview, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to set needs_review: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("series")
	}

	return nil
}

// # Source Link Repository

// sourceRepository implements the [SourceRepository] interface using pgx.
type sourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository constructs a PostgreSQL backed SeriesSource store.
func NewSourceRepository(pool *pgxpool.Pool) SourceRepository {
	return &sourceRepository{pool: pool}
}

// sourceColumns is the stable select list shared by all SeriesSource queries.
func sourceColumns() string {
	s := schema.SyncSeriesSource
	return strings.Join([]string{
		s.ID, s.SeriesID, s.SourceName, s.SourceID, s.SourceURL, s.URLHash,
		s.TrustScore, s.SyncTier, s.LastSuccessAt, s.LastAttemptAt,
		s.ConsecutiveFailures, s.MetadataStatus, s.MetadataRetryCount,
		s.CreatedAt, s.UpdatedAt,
	}, ", ")
}

// scanSource hydrates one SeriesSource row.
func scanSource(row pgx.Row) (*SeriesSource, error) {
	var link SeriesSource
	err := row.Scan(
		&link.ID,
		&link.SeriesID,
		&link.SourceName,
		&link.SourceID,
		&link.SourceURL,
		&link.URLHash,
		&link.TrustScore,
		&link.SyncTier,
		&link.LastSuccessAt,
		&link.LastAttemptAt,
		&link.ConsecutiveFailures,
		&link.MetadataStatus,
		&link.MetadataRetryCount,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

/*
FindByID returns the source link with the given unique identifier.
*/
func (repository *sourceRepository) FindByID(context context.Context, id string) (*SeriesSource, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		sourceColumns(), schema.SyncSeriesSource.Table, schema.SyncSeriesSource.ID)

	link, err := scanSource(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("series source")
		}
		return nil, fmt.Errorf("postgres: failed to find series source by id: %w", err)
	}

	return link, nil
}

/*
FindByExternalID returns the link for an upstream identity pair.
*/
func (repository *sourceRepository) FindByExternalID(context context.Context, sourceName, sourceID string) (*SeriesSource, error) {
	table := schema.SyncSeriesSource
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		sourceColumns(), table.Table, table.SourceName, table.SourceID)

	link, err := scanSource(repository.pool.QueryRow(context, query, sourceName, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("series source")
		}
		return nil, fmt.Errorf("postgres: failed to find series source by external id: %w", err)
	}

	return link, nil
}

/*
FindOrCreate atomically links an upstream entity.

Description: Uses 'ON CONFLICT DO NOTHING' on the (source_name, source_id)
unique constraint so two workers racing to link the same upstream entity
converge on one row — the loser simply reads the winner's row back. A
conflict on the url_hash unique index means a different upstream identity
already claimed the page; that surfaces as a CONFLICT error instead of
silently attaching a second Series to the same URL.
*/
func (repository *sourceRepository) FindOrCreate(context context.Context, link *SeriesSource) (*SeriesSource, bool, error) {
	table := schema.SyncSeriesSource
	insert := fmt.Sprintf(`
		INSERT INTO %s (
			%s, %s, %s, %s, %s, %s,
			%s, %s, %s, %s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (%s, %s) DO NOTHING
	`,
		table.Table,
		table.ID, table.SeriesID, table.SourceName, table.SourceID, table.SourceURL, table.URLHash,
		table.TrustScore, table.SyncTier, table.MetadataStatus, table.MetadataRetryCount,
		table.SourceName, table.SourceID,
	)

	result, err := repository.pool.Exec(context, insert,
		link.ID,
		link.SeriesID,
		link.SourceName,
		link.SourceID,
		link.SourceURL,
		link.URLHash,
		link.TrustScore,
		link.SyncTier,
		link.MetadataStatus,
		link.MetadataRetryCount,
	)
	if err != nil {
		// A url_hash collision is a real conflict, not an idempotent replay.
		if dberr.IsUniqueViolation(err) {
			return nil, false, apperr.Conflict("Source URL already claimed by another series")
		}
		return nil, false, dberr.Wrap(err, "series source link")
	}

	created := result.RowsAffected() > 0

	// Read the winning row back regardless of who inserted it.
	winner, err := repository.FindByExternalID(context, link.SourceName, link.SourceID)
	if err != nil {
		return nil, false, err
	}

	return winner, created, nil
}

/*
ListDue returns source links overdue for a refresh, staleness descending.

Description: A link is due when 'now - last_success_at' exceeds its tier
interval; never-synced links (NULL last_success_at) are always due and sort
first. Ordering by COALESCE(last_success_at, epoch) ascending yields the
most-stale-first order the scheduler requires.
*/
func (repository *sourceRepository) ListDue(context context.Context, now time.Time, hot, warm, cold time.Duration, limit int) ([]*SeriesSource, error) {
	table := schema.SyncSeriesSource
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE (%s = 'hot'  AND COALESCE(%s, 'epoch') <= $1)
		   OR (%s = 'warm' AND COALESCE(%s, 'epoch') <= $2)
		   OR (%s = 'cold' AND COALESCE(%s, 'epoch') <= $3)
		ORDER BY COALESCE(%s, 'epoch') ASC
		LIMIT $4
	`,
		sourceColumns(), table.Table,
		table.SyncTier, table.LastSuccessAt,
		table.SyncTier, table.LastSuccessAt,
		table.SyncTier, table.LastSuccessAt,
		table.LastSuccessAt,
	)

	rows, err := repository.pool.Query(context, query,
		now.Add(-hot), now.Add(-warm), now.Add(-cold), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list due series sources: %w", err)
	}
	defer rows.Close()

	var due []*SeriesSource
	for rows.Next() {
		link, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan due series source: %w", err)
		}
		due = append(due, link)
	}

	return due, rows.Err()
}

/*
RecordSuccess marks a completed sync on a source link.

Description: The trust increment and clamp happen in SQL (LEAST) so
concurrent updates can never push the score outside its domain.
*/
func (repository *sourceRepository) RecordSuccess(context context.Context, id string, at time.Time) error {
	table := schema.SyncSeriesSource
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $1,
		    %s = $1,
		    %s = LEAST(%s + $2, $3),
		    %s = 0,
		    %s = NOW()
		WHERE %s = $4
	`,
		table.Table,
		table.LastSuccessAt,
		table.LastAttemptAt,
		table.TrustScore, table.TrustScore,
		table.ConsecutiveFailures,
		table.UpdatedAt,
		table.ID,
	)

	result, err := repository.pool.Exec(context, query,
		at, constants.TrustScoreSuccessDelta, constants.TrustScoreMax, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to record sync success: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("series source")
	}

	return nil
}

/*
RecordFailure marks a failed sync on a source link.

Description: Decays the trust score (clamped with GREATEST), bumps the
failure counters, and flips metadata status to failed once the retry budget
is spent.
*/
func (repository *sourceRepository) RecordFailure(context context.Context, id string, at time.Time) error {
	table := schema.SyncSeriesSource
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $1,
		    %s = GREATEST(%s - $2, $3),
		    %s = %s + 1,
		    %s = %s + 1,
		    %s = CASE WHEN %s + 1 >= $4 THEN 'failed' ELSE %s END,
		    %s = NOW()
		WHERE %s = $5
	`,
		table.Table,
		table.LastAttemptAt,
		table.TrustScore, table.TrustScore,
		table.ConsecutiveFailures, table.ConsecutiveFailures,
		table.MetadataRetryCount, table.MetadataRetryCount,
		table.MetadataStatus, table.MetadataRetryCount, table.MetadataStatus,
		table.UpdatedAt,
		table.ID,
	)

	result, err := repository.pool.Exec(context, query,
		at, constants.TrustScoreFailureDelta, constants.TrustScoreMin, constants.MetadataMaxRetries, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to record sync failure: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("series source")
	}

	return nil
}

/*
CountStaleByTier returns the number of overdue links per tier for the
operational dashboard.
*/
func (repository *sourceRepository) CountStaleByTier(context context.Context, now time.Time, hot, warm, cold time.Duration) (map[SyncTier]int, error) {
	table := schema.SyncSeriesSource
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*)
		FROM %s
		WHERE (%s = 'hot'  AND COALESCE(%s, 'epoch') <= $1)
		   OR (%s = 'warm' AND COALESCE(%s, 'epoch') <= $2)
		   OR (%s = 'cold' AND COALESCE(%s, 'epoch') <= $3)
		GROUP BY %s
	`,
		table.SyncTier,
		table.Table,
		table.SyncTier, table.LastSuccessAt,
		table.SyncTier, table.LastSuccessAt,
		table.SyncTier, table.LastSuccessAt,
		table.SyncTier,
	)

	rows, err := repository.pool.Query(context, query,
		now.Add(-hot), now.Add(-warm), now.Add(-cold))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count stale sources: %w", err)
	}
	defer rows.Close()

	counts := make(map[SyncTier]int)
	for rows.Next() {
		var tier SyncTier
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan staleness count: %w", err)
		}
		counts[tier] = count
	}

	return counts, rows.Err()
}
