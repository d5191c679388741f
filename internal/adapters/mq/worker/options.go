// Package worker defines worker contracts for asynchronous insight generation.
package worker

import (
	"time"

	"github.com/danielmerja/music-virality-rater/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithJobTimeout bounds how long a single job may run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(w *InMemoryWorker) {
		if timeout > 0 {
			w.jobTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}
