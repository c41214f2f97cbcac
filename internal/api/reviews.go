// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/rensai/internal/core/canonical"
	"github.com/taibuivan/rensai/internal/platform/respond"
)

// defaultReviewPageSize bounds an unparameterized review listing.
const defaultReviewPageSize = 50

// ReviewHandler exposes the match review queue to operators.
type ReviewHandler struct {
	service *canonical.Service
	reviews canonical.ReviewStore
}

// NewReviewHandler constructs the review queue handler set.
func NewReviewHandler(service *canonical.Service, reviews canonical.ReviewStore) *ReviewHandler {
	return &ReviewHandler{service: service, reviews: reviews}
}

// Routes mounts the review queue endpoints.
func (handler *ReviewHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.list)
	router.Post("/{reviewID}/approve", handler.approve)
	router.Post("/{reviewID}/reject", handler.reject)
	return router
}

// list handles GET /reviews, oldest open items first.
func (handler *ReviewHandler) list(writer http.ResponseWriter, request *http.Request) {
	limit := defaultReviewPageSize
	if raw := request.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	items, err := handler.reviews.ListOpen(request.Context(), limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, items)
}

// approve handles POST /reviews/{reviewID}/approve, executing the merge.
func (handler *ReviewHandler) approve(writer http.ResponseWriter, request *http.Request) {
	reviewID := chi.URLParam(request, "reviewID")

	if err := handler.service.ApproveReview(request.Context(), reviewID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// reject handles POST /reviews/{reviewID}/reject, keeping the works distinct.
func (handler *ReviewHandler) reject(writer http.ResponseWriter, request *http.Request) {
	reviewID := chi.URLParam(request, "reviewID")

	if err := handler.service.RejectReview(request.Context(), reviewID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
