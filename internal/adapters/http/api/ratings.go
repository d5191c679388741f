// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
	"github.com/danielmerja/music-virality-rater/internal/domain/types"
)

// ratingRequest is the wire shape for POST /ratings.
type ratingRequest struct {
	TrackID    string `json:"track_id"`
	Dimensions []int  `json:"dimensions"`
	Feedback   string `json:"feedback,omitempty"`
}

// RatingsHandler handles rating submissions.
type RatingsHandler struct {
	deps Dependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps Dependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// HandleSubmitRating handles POST /ratings requests.
func (h *RatingsHandler) HandleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid JSON body"))
		return
	}
	if req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("track_id is required"))
		return
	}
	if len(req.Dimensions) != model.DimensionCount {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("expected %d dimension scores, got %d", model.DimensionCount, len(req.Dimensions)))
		return
	}

	sub := types.RatingSubmission{
		TrackID:  req.TrackID,
		Feedback: req.Feedback,
	}
	copy(sub.Dimensions[:], req.Dimensions)

	ack, err := h.deps.SubmitRating(r.Context(), CallerID(r.Context()), sub)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
