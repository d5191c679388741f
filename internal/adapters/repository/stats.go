package repository

import (
	"context"
	"fmt"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// Counts summarizes table sizes for monitoring.
type Counts struct {
	Tracks          int
	CompletedTracks int
	Ratings         int
	Profiles        int
	InsightRecords  int
}

// GetCounts returns current table counts.
func (s *Store) GetCounts(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		query string
		args  []any
		dst   *int
	}{
		{"SELECT COUNT(1) FROM tracks WHERE deleted = 0", nil, &c.Tracks},
		{"SELECT COUNT(1) FROM tracks WHERE status = ? AND deleted = 0", []any{string(model.StatusComplete)}, &c.CompletedTracks},
		{"SELECT COUNT(1) FROM ratings", nil, &c.Ratings},
		{"SELECT COUNT(1) FROM profiles", nil, &c.Profiles},
		{"SELECT COUNT(1) FROM ai_insights", nil, &c.InsightRecords},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("count query: %w", err)
		}
	}
	return c, nil
}
