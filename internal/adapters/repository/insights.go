package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// ClaimInsight takes ownership of the (track, milestone) unit of work by
// upserting the record to pending. A fresh row is created, and a failed or
// stale pending row is reset for retry; a complete row is left untouched.
// Returns false when the record is already complete.
//
// The UNIQUE(track_id, milestone) constraint plus the conditional DO UPDATE
// guarantee at most one row per key no matter how many callers race.
func (s *Store) ClaimInsight(ctx context.Context, trackID string, ms int) (bool, error) {
	now := timestamp()
	var id string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO ai_insights (id, track_id, milestone, status, insights, created_at, updated_at)
            VALUES (?, ?, ?, ?, '[]', ?, ?)
            ON CONFLICT(track_id, milestone) DO UPDATE
                SET status = excluded.status, updated_at = excluded.updated_at
                WHERE ai_insights.status != ?
            RETURNING id`,
			uuid.NewString(), trackID, ms, string(model.InsightPending), now, now,
			string(model.InsightComplete),
		).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict with a complete row: nothing was claimed.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim insight: %w", err)
	}
	return true, nil
}

// MarkInsightComplete persists the generated payload and flips the record to
// its terminal complete state. A record that is already complete is never
// overwritten.
func (s *Store) MarkInsightComplete(ctx context.Context, trackID string, ms int, insights []model.Insight) error {
	payload, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE ai_insights SET status = ?, insights = ?, updated_at = ?
        WHERE track_id = ? AND milestone = ? AND status != ?`,
		string(model.InsightComplete), string(payload), timestamp(),
		trackID, ms, string(model.InsightComplete),
	)
	if err != nil {
		return fmt.Errorf("complete insight: %w", err)
	}
	// Zero rows means another worker completed the key first; the record is
	// terminal either way, so the losing writer succeeds as a no-op.
	if _, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return nil
}

// MarkInsightFailed flips the record to failed unless it already completed.
// Failed records stay eligible for re-claim by backfill.
func (s *Store) MarkInsightFailed(ctx context.Context, trackID string, ms int) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE ai_insights SET status = ?, updated_at = ?
        WHERE track_id = ? AND milestone = ? AND status != ?`,
		string(model.InsightFailed), timestamp(),
		trackID, ms, string(model.InsightComplete),
	)
	if err != nil {
		return fmt.Errorf("fail insight: %w", err)
	}
	return nil
}

// InsightRecords returns all generation records for a track ordered by
// milestone.
func (s *Store) InsightRecords(ctx context.Context, trackID string) ([]model.InsightRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track_id, milestone, status, insights, created_at, updated_at
        FROM ai_insights WHERE track_id = ? ORDER BY milestone`, trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []model.InsightRecord
	for rows.Next() {
		rec, err := scanInsightRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insights: %w", err)
	}
	return out, nil
}

// InsightStatuses returns the status of each existing record among the given
// milestones. Milestones with no record are absent from the result.
func (s *Store) InsightStatuses(ctx context.Context, trackID string, milestones []int) (map[int]model.InsightStatus, error) {
	out := make(map[int]model.InsightStatus, len(milestones))
	if len(milestones) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(milestones))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(milestones)+1)
	args = append(args, trackID)
	for _, m := range milestones {
		args = append(args, m)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT milestone, status FROM ai_insights
        WHERE track_id = ? AND milestone IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query insight statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m      int
			status string
		)
		if err := rows.Scan(&m, &status); err != nil {
			return nil, fmt.Errorf("scan insight status: %w", err)
		}
		out[m] = model.InsightStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insight statuses: %w", err)
	}
	return out, nil
}

func scanInsightRecord(rows *sql.Rows) (model.InsightRecord, error) {
	var (
		rec       model.InsightRecord
		status    string
		payload   string
		createdAt string
		updatedAt string
	)
	if err := rows.Scan(&rec.ID, &rec.TrackID, &rec.Milestone, &status, &payload, &createdAt, &updatedAt); err != nil {
		return rec, fmt.Errorf("scan insight record: %w", err)
	}
	rec.Status = model.InsightStatus(status)
	if err := json.Unmarshal([]byte(payload), &rec.Insights); err != nil {
		return rec, fmt.Errorf("decode insights: %w", err)
	}
	rec.CreatedAt = parseTimestamp(createdAt)
	rec.UpdatedAt = parseTimestamp(updatedAt)
	return rec, nil
}
