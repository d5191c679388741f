// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielmerja/music-virality-rater/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

type contextKey string

const callerKey contextKey = "caller"

// Identity resolves bearer tokens to caller identifiers. When the token map
// is empty the raw token is treated as the caller id, which keeps local
// development and tests free of token bookkeeping.
type Identity struct {
	tokens map[string]string
}

// NewIdentity creates an Identity resolver from a token-to-caller map.
func NewIdentity(tokens map[string]string) *Identity {
	return &Identity{tokens: tokens}
}

// Middleware extracts the bearer token, resolves the caller and stores the
// identifier in the request context. Requests without a token pass through
// with an empty caller; handlers decide whether identity is required.
func (i *Identity) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		caller := ""
		switch {
		case token == "":
		case len(i.tokens) == 0:
			caller = token
		default:
			resolved, ok := i.tokens[token]
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", fmt.Errorf("unknown token"))
				return
			}
			caller = resolved
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// CallerID returns the caller identifier resolved by the identity middleware.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
