// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/rensai/internal/core/canonical"
	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/postgres"
)

// # Fakes

type memoryWorks struct {
	series.Repository
	works []*series.Series
}

func (m *memoryWorks) Create(_ context.Context, s *series.Series) error {
	m.works = append(m.works, s)
	return nil
}

func (m *memoryWorks) ListCanonicalCandidates(context.Context, []string, int) ([]*series.Series, error) {
	return m.works, nil
}

type memoryLinks struct {
	series.SourceRepository
	links map[string]*series.SeriesSource
}

func (m *memoryLinks) FindByExternalID(_ context.Context, sourceName, sourceID string) (*series.SeriesSource, error) {
	if link, ok := m.links[sourceName+":"+sourceID]; ok {
		return link, nil
	}
	return nil, apperr.NotFound("series source")
}

func (m *memoryLinks) FindOrCreate(_ context.Context, link *series.SeriesSource) (*series.SeriesSource, bool, error) {
	key := link.SourceName + ":" + link.SourceID
	if existing, ok := m.links[key]; ok {
		return existing, false, nil
	}
	m.links[key] = link
	return link, true, nil
}

type passLocks struct{}

func (passLocks) WithLock(ctx context.Context, _ postgres.LockKind, _ []string, fn func(context.Context) error) error {
	return fn(ctx)
}

func newSourceHandler() (*SourceHandler, *memoryWorks) {
	works := &memoryWorks{}
	service := canonical.NewService(
		canonical.NewEngine(),
		works,
		&memoryLinks{links: map[string]*series.SeriesSource{}},
		nil,
		nil,
		passLocks{},
		slog.New(slog.DiscardHandler),
	)
	return NewSourceHandler(service), works
}

// # Registration

func TestSourceRegistration(t *testing.T) {
	post := func(handler *SourceHandler, body string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		recorder := httptest.NewRecorder()
		handler.Routes().ServeHTTP(recorder, request)
		return recorder
	}

	validBody := `{
		"source_name": "mangazone",
		"source_id": "mz-1",
		"source_url": "https://mangazone.example/series/mz-1",
		"title": "Ashfall Chronicle",
		"language": "en"
	}`

	t.Run("should register an upstream series and create its work", func(t *testing.T) {
		handler, works := newSourceHandler()

		recorder := post(handler, validBody)

		assert.Equal(t, http.StatusCreated, recorder.Code)
		require.Len(t, works.works, 1)
		assert.Contains(t, recorder.Body.String(), works.works[0].ID)
	})

	t.Run("should replay a duplicate registration without creating", func(t *testing.T) {
		handler, works := newSourceHandler()

		first := post(handler, validBody)
		second := post(handler, validBody)

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Len(t, works.works, 1, "a replay must not create a second work")
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		handler, _ := newSourceHandler()

		recorder := post(handler, "{not json")

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("should reject a registration without a title", func(t *testing.T) {
		handler, works := newSourceHandler()

		recorder := post(handler, `{
			"source_name": "mangazone",
			"source_id": "mz-1",
			"source_url": "https://mangazone.example/series/mz-1"
		}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Empty(t, works.works)
	})
}
