package ratingload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielmerja/music-virality-rater/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete rating load test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting rating load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("tracks", config.NumTracks),
		logger.Int("voteQuota", config.VoteQuota),
		logger.Int("raters", config.NumRaters),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Create and submit tracks
	tracks, err := createTracks(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("track creation failed: %w", err)
	}

	// Step 3: Generate the rating plan
	ratings, err := generateRatings(ctx, config, tracks, stats)
	if err != nil {
		return fmt.Errorf("rating generation failed: %w", err)
	}

	// Step 4: Submit ratings concurrently
	if err := submitRatings(ctx, config, ratings, stats); err != nil {
		return fmt.Errorf("rating submission failed: %w", err)
	}

	// Step 5: Wait for completion scoring and insight workers to settle
	logger.Get().Info(ctx, "waiting for completion scoring to settle")
	time.Sleep(SettleDelay)

	// Step 6: Verify results
	if err := verifyResults(ctx, config, tracks, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 7: Save the rating plan to file
	if err := saveRatingsToFile(ctx, config, ratings); err != nil {
		logger.Get().Warn(ctx, "failed to save ratings to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveRatingsToFile saves the generated rating plan to a JSON file.
func saveRatingsToFile(ctx context.Context, config *Config, ratings []RatingEvent) error {
	if len(ratings) == 0 {
		return fmt.Errorf("no ratings to save")
	}

	// Determine output filename
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_ratings_" + timestamp + ".json"
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	if _, err := file.WriteString("[\n"); err != nil {
		return fmt.Errorf("failed to write opening bracket: %w", err)
	}

	for i, rating := range ratings {
		jsonData, err := marshalJSON(rating)
		if err != nil {
			return fmt.Errorf("failed to marshal rating %d: %w", i, err)
		}

		if _, err := file.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write rating %d: %w", i, err)
		}

		// Add comma except for last rating
		if i < len(ratings)-1 {
			if _, err := file.WriteString(","); err != nil {
				return fmt.Errorf("failed to write comma: %w", err)
			}
		}
		_, _ = file.WriteString("\n")
	}

	if _, err := file.WriteString("]\n"); err != nil {
		return fmt.Errorf("failed to write closing bracket: %w", err)
	}

	logger.Get().Info(ctx, "ratings saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, ratingsPerSecond float64

	if stats.RatingsSubmitted > 0 {
		successRate = float64(stats.RatingsSuccessful) / float64(stats.RatingsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		ratingsPerSecond = float64(stats.RatingsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("tracksCreated", stats.TracksCreated),
		logger.Int("tracksCompleted", stats.TracksCompleted),
		logger.Int("ratingsGenerated", stats.RatingsGenerated),
		logger.Int("ratingsSubmitted", stats.RatingsSubmitted),
		logger.Int("ratingsSuccessful", stats.RatingsSuccessful),
		logger.Int("ratingsFailed", stats.RatingsFailed),
		logger.Int("creditsEarned", stats.CreditsEarned),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("ratingsPerSecond", ratingsPerSecond))
}
