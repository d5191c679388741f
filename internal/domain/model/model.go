// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"
)

// TrackStatus is the lifecycle state of a track.
type TrackStatus string

// Track lifecycle states.
const (
	StatusDraft      TrackStatus = "draft"
	StatusCollecting TrackStatus = "collecting"
	StatusComplete   TrackStatus = "complete"
)

// InsightStatus is the state of an insight generation record.
type InsightStatus string

// Insight record states. Complete is terminal and is never overwritten.
const (
	InsightPending  InsightStatus = "pending"
	InsightComplete InsightStatus = "complete"
	InsightFailed   InsightStatus = "failed"
)

// Credit transaction reason tags.
const (
	TxSignupBonus = "signup_bonus"
	TxRatingBonus = "rating_bonus"
	TxTrackSubmit = "track_submit"
)

// DimensionCount is the number of fixed rating axes.
const DimensionCount = 4

// Dimension score bounds, inclusive.
const (
	MinDimensionScore = 0
	MaxDimensionScore = 3
)

// RatingCycleLength is how many ratings earn one credit.
const RatingCycleLength = 5

// Track represents an uploaded track and its rating state.
type Track struct {
	ID              string
	OwnerID         string
	Title           string
	GenreTags       []string
	ProductionStage string
	Duration        float64
	SnippetStart    float64
	SnippetEnd      float64
	ShareToken      string
	Status          TrackStatus
	VotesRequested  int
	VotesReceived   int
	OverallScore    *float64 // one fractional digit, set only when complete
	Percentile      *int     // 0-100, set only when complete
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rating is one rater's score vector for a track. Immutable once created.
type Rating struct {
	ID         string
	TrackID    string
	RaterID    string
	Dimensions [DimensionCount]int
	Feedback   string
	CreatedAt  time.Time
}

// RaterProfile tracks a rater's credits and progress counters.
type RaterProfile struct {
	ID             string
	Handle         string
	Credits        int
	TracksUploaded int
	TracksRated    int
	// RatingProgress cycles in [0, RatingCycleLength); reaching the cycle
	// length awards a credit and resets to 0 atomically with the award.
	RatingProgress int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreditTransaction is an append-only ledger row. Summing a rater's rows
// reconciles to the profile's credit balance.
type CreditTransaction struct {
	ID          string
	RaterID     string
	Amount      int
	Reason      string
	ReferenceID string // track involved, when applicable
	CreatedAt   time.Time
}

// Insight is one structured insight returned by the generation service.
type Insight struct {
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Polarity    string `json:"polarity"` // success, warning, default
}

// InsightRecord is the per-(track, milestone) generation state machine row.
type InsightRecord struct {
	ID        string
	TrackID   string
	Milestone int
	Status    InsightStatus
	Insights  []Insight
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsightJob is the unit of work dispatched to the insight workers.
type InsightJob struct {
	TrackID   string
	Milestone int
}

// Key uniquely identifies the job for in-flight suppression.
func (j InsightJob) Key() string {
	return j.TrackID + ":" + strconv.Itoa(j.Milestone)
}
