// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/rensai/internal/core/canonical"
	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/respond"
)

// SourceHandler registers upstream series into the sync pipeline.
//
// Registration is the entry point for everything the scheduler later polls:
// resolving an upstream series canonicalizes it and creates the source link
// the refresh tiers operate on.
type SourceHandler struct {
	service *canonical.Service
}

// NewSourceHandler constructs the source registration handler set.
func NewSourceHandler(service *canonical.Service) *SourceHandler {
	return &SourceHandler{service: service}
}

// Routes mounts the source registration endpoints.
func (handler *SourceHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", handler.register)
	return router
}

// registerSourceRequest is the JSON body for POST /sources.
type registerSourceRequest struct {
	SourceName        string   `json:"source_name"`
	SourceID          string   `json:"source_id"`
	SourceURL         string   `json:"source_url"`
	Title             string   `json:"title"`
	AlternativeTitles []string `json:"alternative_titles,omitempty"`
	Creators          []string `json:"creators,omitempty"`
	Language          string   `json:"language,omitempty"`
	PublicationYear   int      `json:"publication_year,omitempty"`
}

// register handles POST /sources, resolving the upstream series to a
// canonical work and linking it. Replaying a registration returns the
// existing link instead of creating a duplicate.
func (handler *SourceHandler) register(writer http.ResponseWriter, request *http.Request) {
	var body registerSourceRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		respond.Error(writer, request, apperr.ValidationError("Request body is not valid JSON"))
		return
	}

	link, err := handler.service.Resolve(request.Context(),
		canonical.Metadata{
			Title:             body.Title,
			AlternativeTitles: body.AlternativeTitles,
			Creators:          body.Creators,
			Language:          body.Language,
			PublicationYear:   body.PublicationYear,
		},
		canonical.NewSourceLink{
			SourceName: body.SourceName,
			SourceID:   body.SourceID,
			SourceURL:  body.SourceURL,
		},
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusCreated, respond.SuccessEnvelope{Data: link})
}
