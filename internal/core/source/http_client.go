// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// httpFetchTimeout bounds one upstream fetch independently of the job
// deadline; a single slow upstream page must not eat the whole job budget.
const httpFetchTimeout = 30 * time.Second

// chapterPayload is the wire shape upstream connector services return.
type chapterPayload struct {
	Number      string `json:"number"`
	Title       string `json:"title"`
	Volume      string `json:"volume"`
	PublishedAt string `json:"published_at"`
	ChapterID   string `json:"chapter_id"`
	URL         string `json:"url"`
}

// HTTPClient fetches chapter lists from per-source connector endpoints.
//
// Each upstream source is served by a connector service (scraper or API
// bridge) that exposes a uniform JSON chapter list. The daemon only speaks
// this one shape; source-specific parsing lives in the connectors.
type HTTPClient struct {
	endpoints map[string]string
	client    *http.Client
}

// NewHTTPClient constructs the connector-backed source client.
//
// endpoints maps source names to connector base URLs.
func NewHTTPClient(endpoints map[string]string) *HTTPClient {
	return &HTTPClient{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: httpFetchTimeout,
		},
	}
}

/*
FetchChapters returns the complete raw chapter list for one upstream entity.

Description: Failures map onto the typed error classes: transport problems
become [NetworkError], malformed payloads become [ParseError], and a 429
becomes [RateLimitedError] carrying the Retry-After header when present.
Non-2xx statuses other than 429 are treated as network-class failures; a
connector serving 500s is indistinguishable from an unreachable upstream.
*/
func (c *HTTPClient) FetchChapters(ctx context.Context, sourceName, sourceID string) ([]RawChapter, error) {
	base, ok := c.endpoints[sourceName]
	if !ok {
		return nil, &ParseError{Cause: fmt.Errorf("no connector configured for source %q", sourceName)}
	}

	url := fmt.Sprintf("%s/series/%s/chapters", base, sourceID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{RetryAfter: parseRetryAfter(response)}
	case response.StatusCode < 200 || response.StatusCode > 299:
		return nil, &NetworkError{Cause: fmt.Errorf("connector returned status %d", response.StatusCode)}
	}

	var payload []chapterPayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, &ParseError{Cause: err}
	}

	chapters := make([]RawChapter, 0, len(payload))
	for _, entry := range payload {
		chapter := RawChapter{
			Number:          entry.Number,
			Title:           entry.Title,
			Volume:          entry.Volume,
			SourceChapterID: entry.ChapterID,
			URL:             entry.URL,
		}
		if entry.PublishedAt != "" {
			// A bad timestamp degrades to unknown rather than failing the fetch.
			if publishedAt, err := time.Parse(time.RFC3339, entry.PublishedAt); err == nil {
				chapter.PublishedAt = publishedAt
			}
		}
		chapters = append(chapters, chapter)
	}

	return chapters, nil
}

// parseRetryAfter reads a seconds-valued Retry-After header, zero when
// absent or malformed.
func parseRetryAfter(response *http.Response) time.Duration {
	raw := response.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
