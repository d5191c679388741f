// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielmerja/music-virality-rater/internal/domain/types"
)

// trackRequest is the wire shape for POST /tracks.
type trackRequest struct {
	Title           string   `json:"title"`
	GenreTags       []string `json:"genre_tags,omitempty"`
	ProductionStage string   `json:"production_stage,omitempty"`
	Duration        float64  `json:"duration,omitempty"`
	SnippetStart    float64  `json:"snippet_start,omitempty"`
	SnippetEnd      float64  `json:"snippet_end,omitempty"`
}

// submitRequest is the wire shape for POST /tracks/{id}/submit.
type submitRequest struct {
	VotesRequested int `json:"votes_requested,omitempty"`
}

// backfillResponse reports how many insight jobs a backfill dispatched.
type backfillResponse struct {
	Dispatched int `json:"dispatched"`
}

// TracksHandler handles track lifecycle and insight requests.
type TracksHandler struct {
	deps Dependencies
}

// NewTracksHandler creates a new tracks handler.
func NewTracksHandler(deps Dependencies) *TracksHandler {
	return &TracksHandler{deps: deps}
}

// HandleCreateTrack handles POST /tracks requests.
func (h *TracksHandler) HandleCreateTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid JSON body"))
		return
	}

	view, err := h.deps.CreateTrack(r.Context(), CallerID(r.Context()), types.TrackSubmission{
		Title:           req.Title,
		GenreTags:       req.GenreTags,
		ProductionStage: req.ProductionStage,
		Duration:        req.Duration,
		SnippetStart:    req.SnippetStart,
		SnippetEnd:      req.SnippetEnd,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleGetTrack handles GET /tracks/{id} requests.
func (h *TracksHandler) HandleGetTrack(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetTrack(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDeleteTrack handles DELETE /tracks/{id} requests.
func (h *TracksHandler) HandleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteTrack(r.Context(), CallerID(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubmitForRating handles POST /tracks/{id}/submit requests.
func (h *TracksHandler) HandleSubmitForRating(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid JSON body"))
		return
	}

	view, err := h.deps.SubmitForRating(r.Context(), CallerID(r.Context()), r.PathValue("id"), req.VotesRequested)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetInsights handles GET /tracks/{id}/insights requests.
func (h *TracksHandler) HandleGetInsights(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.GetInsights(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleGetRatingCount handles GET /tracks/{id}/ratings requests.
func (h *TracksHandler) HandleGetRatingCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.deps.GetRatingCount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// HandleBackfill handles POST /tracks/{id}/insights/backfill requests.
// Dispatch is asynchronous; the response reports how many milestone jobs
// were queued, not whether generation succeeded.
func (h *TracksHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	dispatched, err := h.deps.TriggerMissingInsights(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, backfillResponse{Dispatched: dispatched})
}
