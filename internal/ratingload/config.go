package ratingload

import "time"

// Config holds configuration for the rating load test
type Config struct {
	BaseURL    string        // Base URL of the service
	NumTracks  int           // Number of tracks to create and submit
	VoteQuota  int           // Votes requested per track
	NumRaters  int           // Size of the simulated rater pool
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for generated ratings
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// TrackHandle identifies a created track and its owner identity
type TrackHandle struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Quota   int    `json:"quota"`
}

// RatingEvent represents one rating to be submitted
type RatingEvent struct {
	TrackID    string `json:"track_id"`
	RaterID    string `json:"rater_id"`
	Dimensions []int  `json:"dimensions"`
	Feedback   string `json:"feedback,omitempty"`
}

// ackResponse represents the response from rating submission
type ackResponse struct {
	CreditEarned bool `json:"credit_earned"`
	NewProgress  int  `json:"new_progress"`
}

// trackResponse represents the subset of a track payload the test inspects
type trackResponse struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	VotesReceived int      `json:"votes_received"`
	OverallScore  *float64 `json:"overall_score"`
	Percentile    *int     `json:"percentile"`
}

// Stats holds test statistics
type Stats struct {
	TracksCreated     int
	RatingsGenerated  int
	RatingsSubmitted  int
	RatingsSuccessful int
	RatingsFailed     int
	CreditsEarned     int
	TracksCompleted   int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
