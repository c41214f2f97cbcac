// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package source defines the capability boundary to upstream chapter providers.

Source-specific scraping lives in external connector services; this package
ships the [Client] interface, the [HTTPClient] that speaks the connectors'
uniform chapter-list shape, and the typed error classes the job boundary
classifies. Upstreams are never assumed reachable; every call site goes
through the queue's retry, backoff, and circuit-breaker machinery.
*/
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RawChapter is one chapter entry exactly as an upstream reports it.
//
// Nothing here is normalized: Number is free text, PublishedAt may be zero,
// and URL may carry tracking garbage. Normalization is the ingestion
// processor's job.
type RawChapter struct {
	// Number is the upstream's chapter-number string ("10.5", "Oneshot").
	Number string
	// Title is the chapter title, possibly empty.
	Title string
	// Volume is the upstream volume label, possibly empty.
	Volume string
	// PublishedAt is the upstream publication timestamp, zero when unknown.
	PublishedAt time.Time
	// SourceChapterID is the upstream's own identifier for this chapter.
	SourceChapterID string
	// URL is the upstream page for this chapter.
	URL string
}

// Client is the per-upstream adapter capability.
//
// FetchChapters returns the complete raw chapter list for one upstream
// entity. Implementations must return one of the typed errors below on
// failure so the job boundary can classify it.
type Client interface {
	FetchChapters(ctx context.Context, sourceName, sourceID string) ([]RawChapter, error)
}

// # Error Classes

// NetworkError indicates the upstream was unreachable or timed out. Transient.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("source: network failure: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// ParseError indicates the upstream responded but its payload could not be
// understood. Retrying may help if the upstream was serving a partial page.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("source: unparseable payload: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// RateLimitedError indicates the upstream throttled us. RetryAfter is the
// upstream-suggested wait, zero when the upstream did not specify one.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("source: rate limited (retry after %s)", e.RetryAfter)
}

// # Classification Helpers

// IsNetwork reports whether err is a [NetworkError].
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsParse reports whether err is a [ParseError].
func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsRateLimited extracts the [RateLimitedError] from err's chain, or nil.
func IsRateLimited(err error) *RateLimitedError {
	var target *RateLimitedError
	if errors.As(err, &target) {
		return target
	}
	return nil
}
