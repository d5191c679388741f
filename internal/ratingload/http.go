package ratingload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HTTPClient wraps http.Client with timeout and bearer identity support
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body, authenticated as identity
func (c *HTTPClient) Post(ctx context.Context, url, identity string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+identity)
	}
	return c.client.Do(req)
}

// marshalJSON marshals a struct to JSON
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// createTracks creates and submits the configured number of tracks, each
// under its own artist identity so signup credits cover the vote quota.
func createTracks(ctx context.Context, config *Config, stats *Stats) ([]TrackHandle, error) {
	log.Printf("🎵 Creating %d tracks with a vote quota of %d...", config.NumTracks, config.VoteQuota)

	client := newHTTPClient(config.Timeout)
	tracks := make([]TrackHandle, 0, config.NumTracks)

	for i := 0; i < config.NumTracks; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during track creation: %w", ctx.Err())
		default:
		}

		owner := "artist_" + uuid.New().String()
		body := map[string]interface{}{
			"title":            fmt.Sprintf("Load Test Track %d", i+1),
			"genre_tags":       []string{"electronic", "test"},
			"production_stage": "demo",
		}

		resp, err := client.Post(ctx, config.BaseURL+"/tracks", owner, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create track %d: %w", i, err)
		}
		raw, err := readResponseBody(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to read track %d response: %w", i, err)
		}
		if resp.StatusCode != StatusCreated {
			return nil, fmt.Errorf("track %d creation failed with status %d: %s", i, resp.StatusCode, raw)
		}

		var created trackResponse
		if err := json.Unmarshal(raw, &created); err != nil {
			return nil, fmt.Errorf("failed to parse track %d response: %w", i, err)
		}

		submitBody := map[string]interface{}{"votes_requested": config.VoteQuota}
		resp, err = client.Post(ctx, config.BaseURL+"/tracks/"+created.ID+"/submit", owner, submitBody)
		if err != nil {
			return nil, fmt.Errorf("failed to submit track %d: %w", i, err)
		}
		raw, err = readResponseBody(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to read submit %d response: %w", i, err)
		}
		if resp.StatusCode != StatusOK {
			return nil, fmt.Errorf("track %d submission failed with status %d: %s", i, resp.StatusCode, raw)
		}

		tracks = append(tracks, TrackHandle{ID: created.ID, OwnerID: owner, Quota: config.VoteQuota})
	}

	stats.TracksCreated = len(tracks)
	log.Printf("✅ Created and submitted %d tracks", len(tracks))
	return tracks, nil
}

// submitRatings submits ratings concurrently using worker pools
func submitRatings(ctx context.Context, config *Config, events []RatingEvent, stats *Stats) error {
	log.Printf("📤 Submitting %d ratings with %d workers...", len(events), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/ratings"

	// Counters for statistics
	var (
		successful int64
		failed     int64
		submitted  int64
		credits    int64
	)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	// Create worker pool
	ratingChan := make(chan RatingEvent, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for event := range ratingChan {
				select {
				case <-ctx.Done():
					return
				default:
					ok, creditEarned := submitSingleRating(ctx, client, url, event)

					atomic.AddInt64(&submitted, 1)
					if ok {
						atomic.AddInt64(&successful, 1)
					} else {
						atomic.AddInt64(&failed, 1)
					}
					if creditEarned {
						atomic.AddInt64(&credits, 1)
					}

					// Progress reporting
					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						succ := atomic.LoadInt64(&successful)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (success: %d, failed: %d)",
								total, len(events), succ, fail)
						} else {
							fmt.Printf("\r📤 Submitted: %d/%d (success: %d, failed: %d)",
								total, len(events), succ, fail)
						}
					}
				}
			}
		}()
	}

	// Send ratings to workers
	go func() {
		defer close(ratingChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case ratingChan <- event:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.RatingsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.RatingsSuccessful = int(atomic.LoadInt64(&successful))
	stats.RatingsFailed = int(atomic.LoadInt64(&failed))
	stats.CreditsEarned = int(atomic.LoadInt64(&credits))

	log.Printf(`✅ Rating submission completed:
   Successful: %d
   Failed: %d
   Cycle credits earned: %d
`, stats.RatingsSuccessful, stats.RatingsFailed, stats.CreditsEarned)

	return nil
}

// submitSingleRating submits a single rating as the event's rater identity.
// It returns whether the submission succeeded and whether it earned a credit.
func submitSingleRating(ctx context.Context, client *HTTPClient, url string, event RatingEvent) (bool, bool) {
	body := map[string]interface{}{
		"track_id":   event.TrackID,
		"dimensions": event.Dimensions,
	}
	if event.Feedback != "" {
		body["feedback"] = event.Feedback
	}

	resp, err := client.Post(ctx, url, event.RaterID, body)
	if err != nil {
		return false, false
	}

	raw, err := readResponseBody(resp)
	if err != nil {
		return false, false
	}

	if resp.StatusCode != StatusOK {
		return false, false
	}

	var ack ackResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return true, false // Submission succeeded even if parsing fails
	}
	return true, ack.CreditEarned
}
