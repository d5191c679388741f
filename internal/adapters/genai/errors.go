package genai

import "errors"

var (
	// ErrMissingAPIKey indicates the client was asked to generate without a key.
	ErrMissingAPIKey = errors.New("genai: api key required")
	// ErrEmptyResponse indicates the provider returned no usable content.
	ErrEmptyResponse = errors.New("genai: empty response content")
	// ErrNoInsights indicates the decoded payload held no valid insights.
	ErrNoInsights = errors.New("genai: no valid insights in payload")
)
