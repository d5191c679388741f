package ratingload

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/danielmerja/music-virality-rater/pkg/logger"
)

// Constants for random number generation.
const (
	raterProfileDivisor = 6
	feedbackDivisor     = 4
	scoreBound          = 4
)

// Constants for rater temperament cases.
const (
	caseEnthusiast = 0
	caseCritic     = 1
	caseNeutral    = 2
	casePolarized  = 3
	caseGenerous   = 4
	caseUniform    = 5
)

var feedbackPool = []string{
	"The hook lands immediately, strong first impression.",
	"Mix feels muddy in the low end, vocals get buried.",
	"Solid groove but the drop comes too late to hold attention.",
	"This would work well as a short-form clip soundtrack.",
	"Melody is memorable, production needs another pass.",
	"Great energy, I would add this to a workout playlist.",
}

// randInt returns a random integer in [0, bound) using crypto/rand.
func randInt(bound int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(bound))
	return n.Int64()
}

// generateRatings builds the full rating plan: a pool of rater identities
// and one rating per (track, rater) pair up to each track's vote quota.
func generateRatings(ctx context.Context, config *Config, tracks []TrackHandle, stats *Stats) ([]RatingEvent, error) {
	logger.Get().Info(ctx, "generating ratings",
		logger.Int("tracks", len(tracks)),
		logger.Int("raters", config.NumRaters))

	raterIDs := make([]string, config.NumRaters)
	for i := range raterIDs {
		raterIDs[i] = "rater_" + uuid.New().String()
	}

	var events []RatingEvent
	for _, track := range tracks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		// Each track receives exactly its quota of ratings. Raters are
		// drawn at random from the pool; repeat raters are allowed.
		for v := 0; v < track.Quota; v++ {
			rater := raterIDs[randInt(int64(config.NumRaters))]
			events = append(events, generateSingleRating(track.ID, rater))
		}
	}

	stats.RatingsGenerated = len(events)
	logger.Get().Info(ctx, "generated ratings successfully", logger.Int("count", len(events)))
	return events, nil
}

// generateSingleRating creates one rating with a temperament-driven
// score vector so the resulting score distribution is not flat.
func generateSingleRating(trackID, raterID string) RatingEvent {
	dims := generateScoreVector()

	feedback := ""
	if randInt(feedbackDivisor) == 0 {
		feedback = feedbackPool[randInt(int64(len(feedbackPool)))]
	}

	return RatingEvent{
		TrackID:    trackID,
		RaterID:    raterID,
		Dimensions: dims,
		Feedback:   feedback,
	}
}

// generateScoreVector produces four dimension scores shaped by a random
// rater temperament.
func generateScoreVector() []int {
	dims := make([]int, 4)
	switch randInt(raterProfileDivisor) {
	case caseEnthusiast:
		// Mostly top scores
		for i := range dims {
			dims[i] = 2 + int(randInt(2))
		}
	case caseCritic:
		// Mostly low scores
		for i := range dims {
			dims[i] = int(randInt(2))
		}
	case caseNeutral:
		// Clustered around the middle
		for i := range dims {
			dims[i] = 1 + int(randInt(2))
		}
	case casePolarized:
		// Extremes only
		for i := range dims {
			dims[i] = int(randInt(2)) * 3
		}
	case caseGenerous:
		// Never below 1
		for i := range dims {
			dims[i] = 1 + int(randInt(3))
		}
	default:
		// Uniform across the full range
		for i := range dims {
			dims[i] = int(randInt(scoreBound))
		}
	}
	return dims
}
