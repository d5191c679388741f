package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/danielmerja/music-virality-rater/internal/ratingload"
)

// Default configuration constants.
const (
	defaultNumTracks  = 20
	defaultVoteQuota  = 10
	defaultNumRaters  = 100
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numTracks  = flag.Int("tracks", defaultNumTracks, "Number of tracks to create and submit")
		voteQuota  = flag.Int("quota", defaultVoteQuota, "Votes requested per track")
		numRaters  = flag.Int("raters", defaultNumRaters, "Size of the simulated rater pool")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for the rating plan (default: generated_ratings_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		ratingload.ShowHelp()
		return
	}

	// Setup logging
	if err := ratingload.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	// Create test configuration
	config := &ratingload.Config{
		BaseURL:    *baseURL,
		NumTracks:  *numTracks,
		VoteQuota:  *voteQuota,
		NumRaters:  *numRaters,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the test
	if err := ratingload.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
