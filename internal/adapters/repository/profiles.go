package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// EnsureProfile creates a rater profile if it does not exist, seeding the
// signup credit grant and its ledger row in the same transaction. Returns
// true when the profile was newly created.
func (s *Store) EnsureProfile(ctx context.Context, raterID, handle string, signupCredits int) (bool, error) {
	now := timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, handle, credits, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING`,
		raterID, handle, signupCredits, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if signupCredits > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credit_transactions (id, rater_id, amount, reason, created_at)
            VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), raterID, signupCredits, model.TxSignupBonus, now,
		); err != nil {
			return false, fmt.Errorf("insert signup transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit profile: %w", err)
	}
	return true, nil
}

// GetProfile loads a rater profile by id.
func (s *Store) GetProfile(ctx context.Context, raterID string) (*model.RaterProfile, error) {
	var (
		p         model.RaterProfile
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, credits, tracks_uploaded, tracks_rated, rating_progress,
            created_at, updated_at
        FROM profiles WHERE id = ?`, raterID,
	).Scan(&p.ID, &p.Handle, &p.Credits, &p.TracksUploaded, &p.TracksRated,
		&p.RatingProgress, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)
	return &p, nil
}

// IncrementRaterProgress atomically bumps tracks_rated and rating_progress
// and returns the post-increment progress observed by this call.
func (s *Store) IncrementRaterProgress(ctx context.Context, raterID string) (int, error) {
	var progress int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE profiles
            SET tracks_rated = tracks_rated + 1,
                rating_progress = rating_progress + 1,
                updated_at = ?
            WHERE id = ?
            RETURNING rating_progress`,
			timestamp(), raterID,
		).Scan(&progress)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment progress: %w", err)
	}
	return progress, nil
}

// AwardCycleBonus resets rating progress and grants one credit, keyed on the
// progress value the caller observed. The conditional WHERE makes the award
// happen at most once per crossing even when submissions race; the ledger
// row is written in the same transaction. Returns true when this call
// performed the award.
func (s *Store) AwardCycleBonus(ctx context.Context, raterID string, observedProgress int, trackID string) (bool, error) {
	now := timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET rating_progress = 0, credits = credits + 1, updated_at = ?
        WHERE id = ? AND rating_progress = ?`,
		now, raterID, observedProgress,
	)
	if err != nil {
		return false, fmt.Errorf("award bonus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, rater_id, amount, reason, reference_id, created_at)
        VALUES (?, ?, 1, ?, ?, ?)`,
		uuid.NewString(), raterID, model.TxRatingBonus, nullableString(trackID), now,
	); err != nil {
		return false, fmt.Errorf("insert bonus transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit bonus: %w", err)
	}
	return true, nil
}

// AdjustCredits applies a signed credit delta and writes the matching ledger
// row in one transaction. A negative delta that would drive the balance
// below zero fails with ErrInsufficientCredits and leaves no side effect.
func (s *Store) AdjustCredits(ctx context.Context, raterID string, amount int, reason, referenceID string) error {
	now := timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Checked and applied as one conditional statement; two concurrent
	// spends cannot both pass a stale balance check.
	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET credits = credits + ?, updated_at = ?
        WHERE id = ? AND credits + ? >= 0`,
		amount, now, raterID, amount,
	)
	if err != nil {
		return fmt.Errorf("adjust credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM profiles WHERE id = ?", raterID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check profile: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrInsufficientCredits
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, rater_id, amount, reason, reference_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), raterID, amount, reason, nullableString(referenceID), now,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit adjustment: %w", err)
	}
	return nil
}

// TransactionsForRater returns a rater's ledger rows, newest first.
func (s *Store) TransactionsForRater(ctx context.Context, raterID string) ([]model.CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rater_id, amount, reason, reference_id, created_at
        FROM credit_transactions WHERE rater_id = ?
        ORDER BY created_at DESC`, raterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.CreditTransaction
	for rows.Next() {
		var (
			t         model.CreditTransaction
			ref       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.RaterID, &t.Amount, &t.Reason, &ref, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.ReferenceID = ref.String
		t.CreatedAt = parseTimestamp(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// SumTransactions returns the signed sum of a rater's ledger rows. The sum
// reconciles with the profile balance.
func (s *Store) SumTransactions(ctx context.Context, raterID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE rater_id = ?",
		raterID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}
