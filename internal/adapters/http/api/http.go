// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/danielmerja/music-virality-rater/internal/app"
	"github.com/danielmerja/music-virality-rater/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitRating(ctx context.Context, raterID string, sub types.RatingSubmission) (types.RatingAck, error)
	CreateTrack(ctx context.Context, ownerID string, sub types.TrackSubmission) (types.TrackView, error)
	SubmitForRating(ctx context.Context, ownerID, trackID string, votesRequested int) (types.TrackView, error)
	DeleteTrack(ctx context.Context, ownerID, trackID string) error
	GetTrack(ctx context.Context, trackID string) (types.TrackView, error)
	GetInsights(ctx context.Context, trackID string) ([]types.InsightRecordView, error)
	GetRatingCount(ctx context.Context, trackID string) (int, error)
	GetProfile(ctx context.Context, raterID string) (types.ProfileView, error)
	TriggerMissingInsights(ctx context.Context, trackID string) (int, error)
}

// StatsProvider exposes service statistics for monitoring.
type StatsProvider interface {
	GetStats(ctx context.Context) (map[string]any, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	ratingsHandler  *RatingsHandler
	tracksHandler   *TracksHandler
	profilesHandler *ProfilesHandler

	identity *Identity
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, identity *Identity) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		ratingsHandler:  NewRatingsHandler(deps),
		tracksHandler:   NewTracksHandler(deps),
		profilesHandler: NewProfilesHandler(deps),
		identity:        identity,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	auth := s.identity.Middleware

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /ratings", auth(MetricsMiddleware(s.ratingsHandler.HandleSubmitRating, "ratings")))

	mux.HandleFunc("POST /tracks", auth(MetricsMiddleware(s.tracksHandler.HandleCreateTrack, "tracks")))
	mux.HandleFunc("GET /tracks/{id}", MetricsMiddleware(s.tracksHandler.HandleGetTrack, "track"))
	mux.HandleFunc("DELETE /tracks/{id}", auth(MetricsMiddleware(s.tracksHandler.HandleDeleteTrack, "track")))
	mux.HandleFunc("POST /tracks/{id}/submit", auth(MetricsMiddleware(s.tracksHandler.HandleSubmitForRating, "track_submit")))
	mux.HandleFunc("GET /tracks/{id}/insights", MetricsMiddleware(s.tracksHandler.HandleGetInsights, "insights"))
	mux.HandleFunc("GET /tracks/{id}/ratings", MetricsMiddleware(s.tracksHandler.HandleGetRatingCount, "ratings_count"))
	mux.HandleFunc("POST /tracks/{id}/insights/backfill", auth(MetricsMiddleware(s.tracksHandler.HandleBackfill, "insights_backfill")))

	mux.HandleFunc("GET /profiles/me", auth(MetricsMiddleware(s.profilesHandler.HandleGetProfile, "profile")))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service sentinel kinds to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient_credits", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
