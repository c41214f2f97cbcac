// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/constants"
)

// # Advisory Locking

// LockKind namespaces advisory lock keys by the resource family they protect.
//
// The set is closed: every lock in the system belongs to exactly one kind, so
// two unrelated resources can never collide on the same key by accident.
type LockKind string

const (
	// LockSeriesSource serializes all chapter-batch writes for one source link.
	LockSeriesSource LockKind = "seriessource"

	// LockSeries serializes canonicalization decisions (create/merge) per work.
	LockSeries LockKind = "series"

	// LockChapter serializes per-(series, chapter-number) identity writes.
	LockChapter LockKind = "chapter"

	// LockCanonicalTitle serializes create-or-link decisions per normalized
	// title, so two workers resolving the same unseen work cannot both
	// create a canonical row.
	LockCanonicalTitle LockKind = "canonicaltitle"
)

// ErrLockUnavailable is returned when another worker already holds the lock.
//
// Callers treat this as "the target is already being handled" and skip the job
// rather than retrying immediately, to avoid hot-looping on a busy resource.
var ErrLockUnavailable = apperr.Transient("Resource is locked by another worker", nil)

// LockKey derives the deterministic 63-bit advisory lock id for a resource.
//
// # Scheme
//
// The kind and identifiers are joined with ':' and hashed with FNV-1a 64,
// then masked to 63 bits because pg_advisory locks take a signed bigint.
// This is the single implementation of the hashing scheme; nothing else in
// the codebase builds lock ids by hand.
func LockKey(kind LockKind, ids ...string) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(string(kind)))
	for _, id := range ids {
		_, _ = hasher.Write([]byte(":"))
		_, _ = hasher.Write([]byte(id))
	}

	// Mask off the sign bit so the key fits Postgres' signed bigint.
	return int64(hasher.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

// AcquireTxLock takes a transaction-scoped advisory lock, non-blocking.
//
// The lock is released automatically when the transaction commits or rolls
// back; there is no explicit unlock path. Returns [ErrLockUnavailable] when
// another session holds the key.
func AcquireTxLock(ctx context.Context, tx pgx.Tx, kind LockKind, ids ...string) error {
	key := LockKey(kind, ids...)

	var acquired bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", key).Scan(&acquired); err != nil {
		return fmt.Errorf("postgres: advisory lock query failed for %s:%s: %w", kind, strings.Join(ids, ":"), err)
	}

	if !acquired {
		return ErrLockUnavailable
	}

	return nil
}

// SessionLocker takes session-scoped advisory locks, for critical sections
// that span more than one transaction. The lock is pinned to a dedicated
// pooled connection for its whole lifetime.
type SessionLocker struct {
	pool *pgxpool.Pool
}

// NewSessionLocker constructs a locker over the shared connection pool.
func NewSessionLocker(pool *pgxpool.Pool) *SessionLocker {
	return &SessionLocker{pool: pool}
}

/*
WithLock runs fn while holding the advisory lock for (kind, ids).

Description: Non-blocking like the transaction variant: a key held by
another session returns [ErrLockUnavailable] instead of queueing behind the
holder. The unlock runs even when ctx is already cancelled; a connection
whose unlock fails is destroyed rather than returned to the pool, because a
pooled connection with a stuck advisory lock would deadlock the next holder.

Parameters:
  - ctx: Passed through to fn; also bounds the acquire attempt
  - kind, ids: The lock identity, hashed via [LockKey]
  - fn: The critical section
*/
func (locker *SessionLocker) WithLock(ctx context.Context, kind LockKind, ids []string, fn func(context.Context) error) error {
	conn, err := locker.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to acquire connection for advisory lock: %w", err)
	}

	key := LockKey(kind, ids...)

	acquireCtx, cancel := context.WithTimeout(ctx, constants.LockAcquireTimeout)
	var acquired bool
	err = conn.QueryRow(acquireCtx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired)
	cancel()
	if err != nil {
		conn.Release()
		return fmt.Errorf("postgres: advisory lock query failed for %s:%s: %w", kind, strings.Join(ids, ":"), err)
	}
	if !acquired {
		conn.Release()
		return ErrLockUnavailable
	}

	defer func() {
		unlockCtx, cancelUnlock := context.WithTimeout(context.WithoutCancel(ctx), constants.LockAcquireTimeout)
		defer cancelUnlock()
		if _, unlockErr := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", key); unlockErr != nil {
			_ = conn.Hijack().Close(unlockCtx)
			return
		}
		conn.Release()
	}()

	return fn(ctx)
}
