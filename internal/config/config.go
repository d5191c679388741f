// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path"`

	// QueueSize bounds the in-memory insight job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of insight workers.
	WorkerCount int `koanf:"worker_count"`

	// GenerationTimeoutSeconds bounds a single external generation call.
	GenerationTimeoutSeconds int `koanf:"generation_timeout_seconds"`

	// GenAIBaseURL points at the chat-completion endpoint.
	GenAIBaseURL string `koanf:"genai_base_url"`

	// GenAIAPIKey authenticates against the generation service.
	GenAIAPIKey string `koanf:"genai_api_key"`

	// GenAIModel names the model used for insight generation.
	GenAIModel string `koanf:"genai_model"`

	// AuthTokens maps bearer tokens to rater identities. When empty the
	// bearer token itself is used as the rater id (development mode).
	AuthTokens map[string]string `koanf:"auth_tokens"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":9080",
		DBPath:                   "rater.db",
		QueueSize:                10_000,
		WorkerCount:              runtime.NumCPU() * 2,
		GenerationTimeoutSeconds: 60,
		GenAIBaseURL:             "https://openrouter.ai/api/v1/chat/completions",
		GenAIModel:               "anthropic/claude-3.5-sonnet",
		AuthTokens:               map[string]string{},
	}
}
