// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"
	"time"

	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/platform/constants"
	"github.com/taibuivan/rensai/internal/platform/respond"
	"github.com/taibuivan/rensai/internal/queue"
)

// # Sync Statistics

// StatsDependencies holds the read-side dependencies of GET /syncstats.
type StatsDependencies struct {
	Queue    queue.Queue
	Letters  queue.DeadLetterStore
	Breakers *queue.BreakerSet
	Sources  series.SourceRepository
}

type statsHandler struct {
	dependencies StatsDependencies
}

// NewStatsHandler creates the GET /syncstats http.HandlerFunc.
func NewStatsHandler(deps StatsDependencies) http.HandlerFunc {
	handler := &statsHandler{dependencies: deps}
	return handler.stats
}

// stats handles GET /syncstats, the operator's one-page pipeline overview.
func (handler *statsHandler) stats(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	depths, err := handler.dependencies.Queue.Stats(ctx)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	deadLetters, err := handler.dependencies.Letters.Count(ctx)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	stale, err := handler.dependencies.Sources.CountStaleByTier(ctx, time.Now().UTC(),
		constants.TierHotInterval, constants.TierWarmInterval, constants.TierColdInterval)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"queue":        depths,
		"dead_letters": deadLetters,
		"breakers":     handler.dependencies.Breakers.States(),
		"stale_by_tier": map[string]int{
			"hot":  stale[series.TierHot],
			"warm": stale[series.TierWarm],
			"cold": stale[series.TierCold],
		},
	})
}
