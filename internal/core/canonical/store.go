// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package canonical

import (
	"context"
	"time"
)

// # Review Queue

// ReviewStatus is the lifecycle state of a review item.
type ReviewStatus string

const (
	ReviewOpen     ReviewStatus = "open"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ReviewItem is one flagged candidate pair awaiting a human verdict.
type ReviewItem struct {
	ID string

	// SeriesID is the newly created work; CandidateSeriesID is the existing
	// work it nearly matched.
	SeriesID          string
	CandidateSeriesID string

	Confidence float64
	Reason     string

	Status     ReviewStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// ReviewStore defines the data access contract for the review queue.
type ReviewStore interface {

	/*
		Enqueue records a flagged pair. Duplicate open items for the same
		pair are collapsed; re-flagging an already queued pair is a no-op.
	*/
	Enqueue(context context.Context, item *ReviewItem) error

	/*
		ListOpen returns open review items, oldest first.
	*/
	ListOpen(context context.Context, limit int) ([]*ReviewItem, error)

	/*
		FindByID returns one review item.
	*/
	FindByID(context context.Context, id string) (*ReviewItem, error)

	/*
		Resolve closes a review item with the given verdict. Resolving an
		already closed item returns ErrConflict.
	*/
	Resolve(context context.Context, id string, status ReviewStatus) error

	/*
		CountOpen returns the open review backlog size, for the operational
		surface.
	*/
	CountOpen(context context.Context) (int, error)
}

// # Merge Execution

// MergeStore defines the transactional merge contract.
type MergeStore interface {

	/*
		Merge collapses the merged work into the primary in one transaction:
		source links and logical chapters are re-parented, the merged row
		becomes a one-hop alias of the primary, any aliases of the merged
		row are re-pointed at the primary, and a merge event is recorded.

		Merging an already merged pair is idempotent.

		Parameters:
		  - context: context.Context
		  - primaryID, mergedID: string (UUIDs, primary survives)
		  - confidence: float64 (score that justified the merge)
		  - reason: string (dominant scoring reason or "manual_review")

		Returns:
		  - error: ErrLockUnavailable, ErrNotFound, or storage failure
	*/
	Merge(context context.Context, primaryID, mergedID string, confidence float64, reason string) error
}
