package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// VoteRepository persists per-user issue votes. Uniqueness on
// (issue_id, user_id) is enforced by the database so concurrent
// toggles cannot double count.
type VoteRepository struct {
	db *sqlx.DB
}

// NewVoteRepository constructs the repository.
func NewVoteRepository(db *sqlx.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// InsertTx adds a vote. Returns false when the user already voted;
// ON CONFLICT DO NOTHING makes the insert race safe.
func (r *VoteRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, issueID, userID string) (bool, error) {
	const query = `INSERT INTO issue_votes (id, issue_id, user_id, created_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (issue_id, user_id) DO NOTHING`
	result, err := tx.ExecContext(ctx, query, uuid.NewString(), issueID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check vote insert rows: %w", err)
	}
	return rows > 0, nil
}

// DeleteTx removes a vote. Returns false when no vote existed.
func (r *VoteRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, issueID, userID string) (bool, error) {
	const query = `DELETE FROM issue_votes WHERE issue_id = $1 AND user_id = $2`
	result, err := tx.ExecContext(ctx, query, issueID, userID)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check vote delete rows: %w", err)
	}
	return rows > 0, nil
}

// CountTx returns the authoritative vote count inside a transaction,
// after a toggle has been applied.
func (r *VoteRepository) CountTx(ctx context.Context, tx *sqlx.Tx, issueID string) (int, error) {
	const query = `SELECT COUNT(*) FROM issue_votes WHERE issue_id = $1`
	var count int
	if err := tx.GetContext(ctx, &count, query, issueID); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

// Count returns the vote count for read paths.
func (r *VoteRepository) Count(ctx context.Context, issueID string) (int, error) {
	const query = `SELECT COUNT(*) FROM issue_votes WHERE issue_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, issueID); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

// Exists reports whether the user has an active vote on the issue.
func (r *VoteRepository) Exists(ctx context.Context, issueID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM issue_votes WHERE issue_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, issueID, userID); err != nil {
		return false, fmt.Errorf("check vote exists: %w", err)
	}
	return exists, nil
}
