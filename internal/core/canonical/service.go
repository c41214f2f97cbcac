// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package canonical

import (
	"context"
	"log/slog"

	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/constants"
	"github.com/taibuivan/rensai/internal/platform/postgres"
	"github.com/taibuivan/rensai/internal/platform/validate"
	"github.com/taibuivan/rensai/pkg/textnorm"
	"github.com/taibuivan/rensai/pkg/urlnorm"
	"github.com/taibuivan/rensai/pkg/uuidv7"
)

// NewSourceLink describes an upstream series being resolved for the first
// time.
type NewSourceLink struct {
	SourceName string
	SourceID   string
	SourceURL  string
}

// Locker serializes the create-or-link critical section. The production
// implementation is [postgres.SessionLocker]; tests substitute an in-memory
// one.
type Locker interface {
	WithLock(ctx context.Context, kind postgres.LockKind, ids []string, fn func(context.Context) error) error
}

// Service runs the full canonicalization flow: exact identity lookup,
// candidate scoring, work creation, review flagging, and source linking.
type Service struct {
	engine  *Engine
	series  series.Repository
	sources series.SourceRepository
	reviews ReviewStore
	merges  MergeStore
	locks   Locker
	logger  *slog.Logger
}

// NewService wires the canonicalization service.
func NewService(
	engine *Engine,
	seriesRepo series.Repository,
	sourceRepo series.SourceRepository,
	reviews ReviewStore,
	merges MergeStore,
	locks Locker,
	logger *slog.Logger,
) *Service {
	return &Service{
		engine:  engine,
		series:  seriesRepo,
		sources: sourceRepo,
		reviews: reviews,
		merges:  merges,
		locks:   locks,
		logger:  logger,
	}
}

/*
Resolve maps one upstream series to a canonical work and links it.

Description: The upstream (source_name, source_id) identity is checked
first; a known identity short-circuits to its existing link regardless of
how its metadata has drifted since. Otherwise the decision and its writes
run under an advisory lock keyed on the normalized title: candidates are
scored and the engine's verdict executes, linking to the best match or
creating a new work, flagged for review when the best near-miss scored in
the ambiguous band. The lock keeps two workers that see the same unseen
title from both creating a canonical row; the identity check repeats inside
it because the other worker may have finished between the first check and
the lock grant.

Returns:
  - *series.SeriesSource: The link (existing or newly created)
  - error: Storage failure, or a transient error when the title is locked
*/
func (service *Service) Resolve(ctx context.Context, meta Metadata, link NewSourceLink) (*series.SeriesSource, error) {
	v := &validate.Validator{}
	err := v.
		Required("title", meta.Title).
		Required("source_name", link.SourceName).
		Required("source_id", link.SourceID).
		Required("source_url", link.SourceURL).
		Err()
	if err != nil {
		return nil, err
	}

	existing, err := service.sources.FindByExternalID(ctx, link.SourceName, link.SourceID)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	var resolved *series.SeriesSource
	lockIDs := []string{textnorm.Normalize(meta.Title)}
	err = service.locks.WithLock(ctx, postgres.LockCanonicalTitle, lockIDs, func(ctx context.Context) error {
		replayed, err := service.sources.FindByExternalID(ctx, link.SourceName, link.SourceID)
		if err == nil {
			resolved = replayed
			return nil
		}
		if !apperr.IsNotFound(err) {
			return err
		}

		decision, err := service.decide(ctx, meta)
		if err != nil {
			return err
		}

		var seriesID string
		switch decision.Action {
		case ActionLink:
			seriesID = decision.Best.ID
		case ActionCreate, ActionCreateFlagged:
			seriesID, err = service.createWork(ctx, meta, decision)
			if err != nil {
				return err
			}
		}

		service.logger.Info("canonicalization_decided",
			slog.String("action", string(decision.Action)),
			slog.String("series_id", seriesID),
			slog.String("source", link.SourceName),
			slog.String("source_id", link.SourceID),
			slog.Float64("confidence", decision.Score.Value),
			slog.String("reason", decision.Score.Reason),
		)

		resolved, err = service.createLink(ctx, seriesID, link)
		return err
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// decide loads the candidate set and scores it.
func (service *Service) decide(ctx context.Context, meta Metadata) (Decision, error) {
	tokens := textnorm.Tokens(meta.Title)

	candidates, err := service.series.ListCanonicalCandidates(ctx, tokens, candidateLimit)
	if err != nil {
		return Decision{}, err
	}

	return service.engine.Decide(candidates, meta), nil
}

// createWork persists a new canonical Series and, for ambiguous decisions,
// queues the review item against the near-miss candidate.
func (service *Service) createWork(ctx context.Context, meta Metadata, decision Decision) (string, error) {
	work := &series.Series{
		ID:                uuidv7.New(),
		Title:             meta.Title,
		AlternativeTitles: meta.AlternativeTitles,
		Creators:          meta.Creators,
		Language:          meta.Language,
		PublicationYear:   meta.PublicationYear,
		Status:            series.StatusOngoing,
		MetadataRank:      series.RankInferred,
		NeedsReview:       decision.Action == ActionCreateFlagged,
	}

	if err := service.series.Create(ctx, work); err != nil {
		return "", err
	}

	if decision.Action == ActionCreateFlagged {
		err := service.reviews.Enqueue(ctx, &ReviewItem{
			SeriesID:          work.ID,
			CandidateSeriesID: decision.Best.ID,
			Confidence:        decision.Score.Value,
			Reason:            decision.Score.Reason,
		})
		if err != nil {
			return "", err
		}
	}

	return work.ID, nil
}

// createLink inserts the source link for a resolved work.
func (service *Service) createLink(ctx context.Context, seriesID string, link NewSourceLink) (*series.SeriesSource, error) {
	urlHash, err := urlnorm.Hash(link.SourceURL)
	if err != nil {
		return nil, apperr.ValidationError("Source URL is not a valid absolute URL")
	}

	created, _, err := service.sources.FindOrCreate(ctx, &series.SeriesSource{
		ID:             uuidv7.New(),
		SeriesID:       seriesID,
		SourceName:     link.SourceName,
		SourceID:       link.SourceID,
		SourceURL:      link.SourceURL,
		URLHash:        urlHash,
		TrustScore:     constants.TrustScoreInitial,
		SyncTier:       series.TierHot,
		MetadataStatus: series.MetadataPending,
	})
	return created, err
}

/*
ApproveReview executes a human-approved merge for a flagged pair.

Description: Primary selection re-runs at approval time (rank, followers,
age, ID) rather than being frozen at flag time, so whichever side gained a
user override or more followers since flagging wins. The merge itself is
idempotent; approving a replayed resolution is harmless.
*/
func (service *Service) ApproveReview(ctx context.Context, reviewID string) error {
	v := &validate.Validator{}
	if err := v.UUID("review_id", reviewID).Err(); err != nil {
		return err
	}

	item, err := service.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return err
	}

	flagged, err := service.series.FindByID(ctx, item.SeriesID)
	if err != nil {
		return err
	}
	candidate, err := service.series.FindByID(ctx, item.CandidateSeriesID)
	if err != nil {
		return err
	}

	primary, merged := DecidePrimary(flagged, candidate)
	if err := service.merges.Merge(ctx, primary.ID, merged.ID, item.Confidence, "manual_review"); err != nil {
		return err
	}

	if err := service.reviews.Resolve(ctx, reviewID, ReviewApproved); err != nil {
		return err
	}

	service.logger.Info("review_approved",
		slog.String("review_id", reviewID),
		slog.String("primary_series_id", primary.ID),
		slog.String("merged_series_id", merged.ID),
	)

	return nil
}

/*
RejectReview closes a flagged pair as distinct works and clears the review
flag on the newer series.
*/
func (service *Service) RejectReview(ctx context.Context, reviewID string) error {
	v := &validate.Validator{}
	if err := v.UUID("review_id", reviewID).Err(); err != nil {
		return err
	}

	item, err := service.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return err
	}

	if err := service.reviews.Resolve(ctx, reviewID, ReviewRejected); err != nil {
		return err
	}

	if err := service.series.SetNeedsReview(ctx, item.SeriesID, false); err != nil {
		return err
	}

	service.logger.Info("review_rejected",
		slog.String("review_id", reviewID),
		slog.String("series_id", item.SeriesID),
	)

	return nil
}
