// Package types contains common read and write shapes shared between the
// service and the HTTP API.
package types

import (
	"time"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// RatingSubmission is the write shape for one rating.
type RatingSubmission struct {
	TrackID    string
	Dimensions [model.DimensionCount]int
	Feedback   string
}

// TrackSubmission is the write shape for creating a draft track.
type TrackSubmission struct {
	Title           string
	GenreTags       []string
	ProductionStage string
	Duration        float64
	SnippetStart    float64
	SnippetEnd      float64
}

// RatingAck is the result of a rating submission.
type RatingAck struct {
	CreditEarned bool `json:"credit_earned"`
	NewProgress  int  `json:"new_progress"`
}

// TrackView is the external representation of a track.
type TrackView struct {
	ID              string   `json:"id"`
	OwnerID         string   `json:"owner_id"`
	Title           string   `json:"title"`
	GenreTags       []string `json:"genre_tags,omitempty"`
	ProductionStage string   `json:"production_stage,omitempty"`
	Status          string   `json:"status"`
	VotesRequested  int      `json:"votes_requested"`
	VotesReceived   int      `json:"votes_received"`
	OverallScore    *float64 `json:"overall_score,omitempty"`
	Percentile      *int     `json:"percentile,omitempty"`
	ShareToken      string   `json:"share_token,omitempty"`
}

// ProfileView is the external representation of a rater profile.
type ProfileView struct {
	ID             string `json:"id"`
	Handle         string `json:"handle"`
	Credits        int    `json:"credits"`
	TracksUploaded int    `json:"tracks_uploaded"`
	TracksRated    int    `json:"tracks_rated"`
	RatingProgress int    `json:"rating_progress"`
}

// InsightView is one generated insight as served to clients.
type InsightView struct {
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Polarity    string `json:"polarity"`
}

// InsightRecordView is the per-milestone generation record served to clients.
type InsightRecordView struct {
	Milestone int           `json:"milestone"`
	Status    string        `json:"status"`
	Insights  []InsightView `json:"insights,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}
