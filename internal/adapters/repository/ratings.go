package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// InsertRating appends one immutable rating row.
func (s *Store) InsertRating(ctx context.Context, r *model.Rating) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := timestamp()

	_, err := s.execWithRetry(ctx,
		`INSERT INTO ratings (id, track_id, rater_id, dimension1, dimension2, dimension3, dimension4, feedback, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TrackID, r.RaterID,
		r.Dimensions[0], r.Dimensions[1], r.Dimensions[2], r.Dimensions[3],
		nullableString(r.Feedback), now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return fmt.Errorf("insert rating: track %s: %w", r.TrackID, ErrNotFound)
		}
		return fmt.Errorf("insert rating: %w", err)
	}
	r.CreatedAt = parseTimestamp(now)
	return nil
}

// RatingsForTrack loads all ratings for a track in insertion order.
func (s *Store) RatingsForTrack(ctx context.Context, trackID string) ([]model.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track_id, rater_id, dimension1, dimension2, dimension3, dimension4, feedback, created_at
        FROM ratings WHERE track_id = ? ORDER BY created_at`, trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []model.Rating
	for rows.Next() {
		var (
			r         model.Rating
			feedback  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.TrackID, &r.RaterID,
			&r.Dimensions[0], &r.Dimensions[1], &r.Dimensions[2], &r.Dimensions[3],
			&feedback, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		r.Feedback = feedback.String
		r.CreatedAt = parseTimestamp(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return out, nil
}

// CountRatings returns the number of ratings recorded for a track.
func (s *Store) CountRatings(ctx context.Context, trackID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM ratings WHERE track_id = ?", trackID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return n, nil
}
