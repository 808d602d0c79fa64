package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuscare/campuscare-api/internal/models"
)

// AssignmentRepository persists work orders linking issues to staff.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, issue_id, staff_id, assigned_by, assigned_at,
       started_at, completed_at, completion_note, completion_photo_url`

// CreateTx inserts a new work order inside the assignment transaction.
func (r *AssignmentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignments (id, issue_id, staff_id, assigned_by, assigned_at, started_at, completed_at, completion_note, completion_photo_url)
        VALUES (:id, :issue_id, :staff_id, :assigned_by, :assigned_at, :started_at, :completed_at, :completion_note, :completion_photo_url)`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID fetches an assignment by identifier.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// GetOpenByIssue returns the open work order for an issue, if any.
// At most one assignment per issue is ever open.
func (r *AssignmentRepository) GetOpenByIssue(ctx context.Context, issueID string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE issue_id = $1 AND completed_at IS NULL LIMIT 1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, issueID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// StartTx stamps started_at. The guard rejects a second start and
// starts after completion.
func (r *AssignmentRepository) StartTx(ctx context.Context, tx *sqlx.Tx, id string, startedAt time.Time) error {
	const query = `UPDATE assignments SET started_at = $2 WHERE id = $1 AND started_at IS NULL AND completed_at IS NULL`
	result, err := tx.ExecContext(ctx, query, id, startedAt)
	if err != nil {
		return fmt.Errorf("start assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assignment start rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteTx stamps completion details. The guard requires the work
// order to be started and still open.
func (r *AssignmentRepository) CompleteTx(ctx context.Context, tx *sqlx.Tx, id string, completedAt time.Time, note, photoURL string) error {
	const query = `UPDATE assignments SET completed_at = $2, completion_note = $3, completion_photo_url = $4
        WHERE id = $1 AND started_at IS NOT NULL AND completed_at IS NULL`
	result, err := tx.ExecContext(ctx, query, id, completedAt, note, photoURL)
	if err != nil {
		return fmt.Errorf("complete assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assignment complete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByStaff returns a staff member's work orders, newest first,
// with issue context joined in.
func (r *AssignmentRepository) ListByStaff(ctx context.Context, staffID string, openOnly bool) ([]models.AssignmentDetail, error) {
	query := `SELECT a.id, a.issue_id, a.staff_id, a.assigned_by, a.assigned_at,
               a.started_at, a.completed_at, a.completion_note, a.completion_photo_url,
               i.description AS issue_description, i.category AS issue_category,
               i.status AS issue_status, i.priority AS issue_priority,
               i.urgency_score AS issue_urgency_score, i.due_by AS issue_due_by,
               i.location_id AS issue_location_id
        FROM assignments a
        JOIN issues i ON i.id = a.issue_id
        WHERE a.staff_id = $1`
	if openOnly {
		query += " AND a.completed_at IS NULL"
	}
	query += " ORDER BY a.assigned_at DESC"

	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, staffID); err != nil {
		return nil, fmt.Errorf("list staff assignments: %w", err)
	}
	return details, nil
}
