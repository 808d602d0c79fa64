package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuscare/campuscare-api/internal/models"
)

// HistoryRepository appends to and reads the issue status ledger.
// The ledger is append only: there are no update or delete paths.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendTx records a status transition inside the same transaction
// as the issue mutation it describes.
func (r *HistoryRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO issue_status_history (id, issue_id, from_status, to_status, changed_by, note, created_at)
        VALUES (:id, :issue_id, :from_status, :to_status, :changed_by, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

// ListByIssue returns the full ledger for an issue, oldest first.
func (r *HistoryRepository) ListByIssue(ctx context.Context, issueID string) ([]models.StatusHistoryEntry, error) {
	const query = `SELECT id, issue_id, from_status, to_status, changed_by, note, created_at
        FROM issue_status_history WHERE issue_id = $1 ORDER BY created_at ASC, id ASC`
	var entries []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, issueID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}
