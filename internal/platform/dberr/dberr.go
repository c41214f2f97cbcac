// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/rensai/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details while classifying the error type for the
// job boundary.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. SQLSTATE-based classification. Unique violations are the storage-layer
	// backstop for concurrent writers converging on the same row: the loser of
	// the race sees a conflict, not corruption. Serialization failures are safe
	// to retry.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return apperr.Conflict("Duplicate row for " + action)
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return apperr.Transient("Concurrent update conflict during "+action, err)
		}
	}

	// 3. Unknown query errors become internal (fatal-class) errors.
	return apperr.Internal(err)
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
//
// Call sites use this to distinguish "another worker already created this row"
// from genuine failures in find-or-create paths.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
