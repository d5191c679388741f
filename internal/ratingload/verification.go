package ratingload

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
)

// verifyResults fetches every created track back and checks vote counters
// and completion scoring against the submitted plan.
func verifyResults(ctx context.Context, config *Config, tracks []TrackHandle, stats *Stats) error {
	log.Println("🔍 Verifying results...")

	if len(tracks) == 0 {
		return fmt.Errorf("no tracks to verify")
	}

	client := newHTTPClient(config.Timeout)

	var (
		completed []trackResponse
		shortfall int
	)
	for _, handle := range tracks {
		resp, err := client.Get(ctx, config.BaseURL+"/tracks/"+handle.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch track %s: %w", handle.ID, err)
		}
		raw, err := readResponseBody(resp)
		if err != nil {
			return fmt.Errorf("failed to read track %s: %w", handle.ID, err)
		}
		if resp.StatusCode != StatusOK {
			return fmt.Errorf("track %s fetch failed with status %d", handle.ID, resp.StatusCode)
		}

		var track trackResponse
		if err := json.Unmarshal(raw, &track); err != nil {
			return fmt.Errorf("failed to parse track %s: %w", handle.ID, err)
		}

		if track.VotesReceived < handle.Quota {
			shortfall++
			log.Printf("⚠️  Track %s received %d of %d votes", track.ID, track.VotesReceived, handle.Quota)
			continue
		}

		if track.Status != "complete" {
			log.Printf("⚠️  Track %s met its quota but is still %q", track.ID, track.Status)
			continue
		}
		if track.OverallScore == nil || track.Percentile == nil {
			log.Printf("⚠️  Track %s is complete but missing scores", track.ID)
			continue
		}
		completed = append(completed, track)
	}

	stats.TracksCompleted = len(completed)
	displayCompletedTracks(completed, config.Verbose)

	if shortfall > 0 {
		log.Printf("⚠️  %d tracks fell short of their quota", shortfall)
	}
	log.Println("✅ Result verification completed")
	return nil
}

// displayCompletedTracks shows the best scoring completed tracks.
func displayCompletedTracks(completed []trackResponse, verbose bool) {
	if len(completed) == 0 {
		log.Println("⚠️  No tracks completed")
		return
	}

	sorted := make([]trackResponse, len(completed))
	copy(sorted, completed)
	sort.Slice(sorted, func(i, j int) bool {
		return *sorted[i].OverallScore > *sorted[j].OverallScore
	})

	topN := 10
	if len(sorted) < topN {
		topN = len(sorted)
	}

	log.Printf("🏆 Top %d completed tracks:", topN)
	for i := 0; i < topN; i++ {
		track := sorted[i]
		log.Printf("   %d. %s - Score: %.1f (P%d)", i+1, track.ID, *track.OverallScore, *track.Percentile)
	}

	if verbose {
		avg := 0.0
		for _, track := range sorted {
			avg += *track.OverallScore
		}
		avg /= float64(len(sorted))

		log.Printf(`📊 Score statistics:
   Completed: %d
   Average: %.2f
   Maximum: %.1f
   Minimum: %.1f
`, len(sorted), avg, *sorted[0].OverallScore, *sorted[len(sorted)-1].OverallScore)
	}
}
