// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import "context"

// # Chapter Data Access

// CommitCheck is invoked inside the transaction immediately before commit.
// Returning an error rolls the whole chunk back. The queue uses this to
// verify its fencing token so a stalled worker's resurrected transaction
// can never overwrite a successor's writes.
type CommitCheck func(ctx context.Context) error

// Store defines the data access contract for logical chapters and their
// per-source availability rows.
type Store interface {

	/*
		ListActiveBySource returns the active (non-tombstoned) chapter state
		for one source link, joined with each logical chapter's ordering key.
		This is the stored side of the sync diff.

		Parameters:
		  - context: context.Context
		  - seriesSourceID: string (UUID)

		Returns:
		  - []*SourcedChapter: Active rows, unordered
		  - error: Storage failure
	*/
	ListActiveBySource(context context.Context, seriesSourceID string) ([]*SourcedChapter, error)

	/*
		ApplyBatch applies one diff chunk in a single transaction.

		The transaction takes the series-source advisory lock first; if the
		lock is unavailable another worker is mid-write and the caller must
		retry. All upserts and tombstones commit atomically. The commitCheck
		runs last, inside the transaction, and an error from it aborts the
		chunk.

		Parameters:
		  - context: context.Context
		  - set: ChangeSet (one chunk, at most MaxChaptersPerSync upserts)
		  - commitCheck: CommitCheck (nil to skip)

		Returns:
		  - error: ErrLockUnavailable, commitCheck failure, or storage failure
	*/
	ApplyBatch(context context.Context, set ChangeSet, commitCheck CommitCheck) error

	/*
		CountActiveBySeries returns the number of active logical chapters a
		series has, for the operational surface.
	*/
	CountActiveBySeries(context context.Context, seriesID string) (int, error)
}
