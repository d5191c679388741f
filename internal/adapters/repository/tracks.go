package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// VoteCount is the state captured atomically with a vote increment.
type VoteCount struct {
	VotesReceived  int
	VotesRequested int
	Status         model.TrackStatus
}

// CreateTrack inserts a draft track and bumps the owner's upload counter in
// one transaction.
func (s *Store) CreateTrack(ctx context.Context, t *model.Track) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusDraft
	}
	now := timestamp()

	tags, err := json.Marshal(t.GenreTags)
	if err != nil {
		return fmt.Errorf("encode genre tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tracks (
            id, owner_id, title, genre_tags, production_stage, duration,
            snippet_start, snippet_end, share_token, status,
            votes_requested, votes_received, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.OwnerID, t.Title, string(tags), t.ProductionStage, t.Duration,
		t.SnippetStart, t.SnippetEnd, t.ShareToken, string(t.Status),
		t.VotesRequested, now, now,
	); err != nil {
		return fmt.Errorf("insert track: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET tracks_uploaded = tracks_uploaded + 1, updated_at = ? WHERE id = ?`,
		now, t.OwnerID,
	); err != nil {
		return fmt.Errorf("bump uploads: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit track: %w", err)
	}
	t.CreatedAt = parseTimestamp(now)
	t.UpdatedAt = t.CreatedAt
	return nil
}

// GetTrack loads a track by id. Soft-deleted tracks are not returned.
func (s *Store) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, genre_tags, production_stage, duration,
            snippet_start, snippet_end, share_token, status,
            votes_requested, votes_received, overall_score, percentile,
            created_at, updated_at
        FROM tracks WHERE id = ? AND deleted = 0`, id)
	return scanTrack(row)
}

func scanTrack(row *sql.Row) (*model.Track, error) {
	var (
		t         model.Track
		tags      string
		status    string
		score     sql.NullFloat64
		pct       sql.NullInt64
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &tags, &t.ProductionStage, &t.Duration,
		&t.SnippetStart, &t.SnippetEnd, &t.ShareToken, &status,
		&t.VotesRequested, &t.VotesReceived, &score, &pct,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan track: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &t.GenreTags); err != nil {
		return nil, fmt.Errorf("decode genre tags: %w", err)
	}
	t.Status = model.TrackStatus(status)
	if score.Valid {
		v := score.Float64
		t.OverallScore = &v
	}
	if pct.Valid {
		v := int(pct.Int64)
		t.Percentile = &v
	}
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updatedAt)
	return &t, nil
}

// SubmitTrack moves an owner's draft track into collecting with the
// requested vote quota. Returns ErrNotFound when the track does not exist,
// is not owned by ownerID, or is not a draft.
func (s *Store) SubmitTrack(ctx context.Context, id, ownerID string, votesRequested int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE tracks SET status = ?, votes_requested = ?, updated_at = ?
        WHERE id = ? AND owner_id = ? AND status = ? AND deleted = 0`,
		string(model.StatusCollecting), votesRequested, timestamp(),
		id, ownerID, string(model.StatusDraft),
	)
	if err != nil {
		return fmt.Errorf("submit track: %w", err)
	}
	return requireRow(res)
}

// SoftDeleteTrack hides an owner's track from all reads.
func (s *Store) SoftDeleteTrack(ctx context.Context, id, ownerID string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE tracks SET deleted = 1, updated_at = ? WHERE id = ? AND owner_id = ? AND deleted = 0`,
		timestamp(), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	return requireRow(res)
}

// IncrementVotes atomically bumps votes_received and returns the
// post-increment state observed by this call.
func (s *Store) IncrementVotes(ctx context.Context, id string) (VoteCount, error) {
	var (
		vc     VoteCount
		status string
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE tracks SET votes_received = votes_received + 1, updated_at = ?
            WHERE id = ? AND deleted = 0
            RETURNING votes_received, votes_requested, status`,
			timestamp(), id,
		).Scan(&vc.VotesReceived, &vc.VotesRequested, &status)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return VoteCount{}, ErrNotFound
	}
	if err != nil {
		return VoteCount{}, fmt.Errorf("increment votes: %w", err)
	}
	vc.Status = model.TrackStatus(status)
	return vc, nil
}

// CompleteTrack writes the final score, percentile, and complete status in
// one conditional update. Returns true only for the call that performed the
// collecting-to-complete transition.
func (s *Store) CompleteTrack(ctx context.Context, id string, overall float64, percentile int) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tracks SET status = ?, overall_score = ?, percentile = ?, updated_at = ?
        WHERE id = ? AND status != ? AND deleted = 0`,
		string(model.StatusComplete), overall, percentile, timestamp(),
		id, string(model.StatusComplete),
	)
	if err != nil {
		return false, fmt.Errorf("complete track: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CompletedScores returns the overall scores of all completed tracks other
// than excludeID. This reads the whole population on every call; the
// percentile snapshot is not linearized against concurrent completions.
func (s *Store) CompletedScores(ctx context.Context, excludeID string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT overall_score FROM tracks
        WHERE status = ? AND overall_score IS NOT NULL AND id != ? AND deleted = 0`,
		string(model.StatusComplete), excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return scores, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
