package ratingload

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/danielmerja/music-virality-rater/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "test_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the rating load tool.
func ShowHelp() {
	os.Stdout.WriteString(`Rating Load Test Tool
=====================

A concurrent tool for exercising the crowd rating pipeline end to end:
track creation, rating ingestion, credit cycles and completion scoring.

Usage:
  go run cmd/test-ratings/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -tracks int
        Number of tracks to create and submit (default 20)
  -quota int
        Votes requested per track (default 10)
  -raters int
        Size of the simulated rater pool (default 100)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for the rating plan (default: generated_ratings_TIMESTAMP.json)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run cmd/test-ratings/main.go

  # Larger run against a local instance
  go run cmd/test-ratings/main.go -tracks 100 -quota 20 -workers 16

  # Test with verbose output
  go run cmd/test-ratings/main.go -verbose -tracks 50
`)
}
