// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for Rensai.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level responses, plus the job-boundary classification used by the
queue to decide between retry, skip, and dead-letter.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Class: A closed classification (transient/data/structural/fatal) attached to
    every error that crosses the job boundary.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes for the
    operational surface.

Every error that leaves a service layer should be wrapped as an [AppError] to ensure
consistent treatment. Raw internal errors never cross the queue boundary — only the
classification does.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Job-Boundary Classification

// Class partitions every failure into one of four handling strategies.
//
// The set is closed: switches over Class must enumerate all four values.
type Class string

const (
	// ClassTransient covers network timeouts, rate limits, lock contention, and
	// serialization conflicts. Retried with backoff, bounded attempts.
	ClassTransient Class = "transient"

	// ClassData covers malformed single items (unparseable chapter numbers,
	// broken payload fragments). The item is skipped; the batch continues.
	ClassData Class = "data"

	// ClassStructural covers suspicious wholesale upstream changes (e.g. most
	// chapters vanishing at once). No destructive action is taken.
	ClassStructural Class = "structural"

	// ClassFatal covers programmer and invariant errors. The job fails and is
	// dead-lettered after exhausting attempts, never silently swallowed.
	ClassFatal Class = "fatal"
)

// AppError is the canonical error type for the Rensai platform.
//
// It carries an HTTP status code for the operational surface, a machine-readable
// code, a client-safe message, and the job-boundary classification.
//
// # Security
//
// The Cause field is for server-side logging only and is never surfaced outward
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "CONFLICT").
	Code string `json:"code"`
	// Message is a human-readable description safe to surface.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code for the ops surface.
	HTTPStatus int `json:"-"`
	// Class is the job-boundary classification. Zero value means unclassified
	// and is treated as fatal by the queue.
	Class Class `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Constructors

// NotFound creates a 404 [AppError] for a named resource.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Class:      ClassData,
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    msg,
		HTTPStatus: http.StatusConflict,
		Class:      ClassTransient,
	}
}

// Transient wraps a recoverable failure (network, lock contention, rate limit).
func Transient(msg string, cause error) *AppError {
	return &AppError{
		Code:       "TRANSIENT",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
		Class:      ClassTransient,
		Cause:      cause,
	}
}

// Data wraps a single-item data failure that should not abort the batch.
func Data(msg string, cause error) *AppError {
	return &AppError{
		Code:       "DATA_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusUnprocessableEntity,
		Class:      ClassData,
		Cause:      cause,
	}
}

// Structural wraps a suspected wholesale upstream error.
func Structural(msg string) *AppError {
	return &AppError{
		Code:       "STRUCTURAL",
		Message:    msg,
		HTTPStatus: http.StatusConflict,
		Class:      ClassStructural,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Class:      ClassFatal,
		Details:    details,
	}
}

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never surfaced outward.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Class:      ClassFatal,
		Cause:      cause,
	}
}

// RateLimited creates a 429 [AppError] for upstream throttling.
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Upstream throttled. Retry in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
		Class:      ClassTransient,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a NOT_FOUND [*AppError].
func IsNotFound(err error) bool {
	ae := As(err)
	return ae != nil && ae.Code == "NOT_FOUND"
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// Classify returns the job-boundary class for any error.
//
// Unclassified errors default to [ClassFatal] so that unknown failures are
// always visible in the dead-letter set rather than retried forever.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if ae := As(err); ae != nil && ae.Class != "" {
		return ae.Class
	}
	return ClassFatal
}
