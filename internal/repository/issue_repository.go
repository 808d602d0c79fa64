package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuscare/campuscare-api/internal/models"
)

// IssueRepository persists issues and their owned photos.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = `id, title, description, category, location_id, status, priority,
       urgency_score, escalation_level, due_by, is_anonymous, reporter_id,
       created_at, updated_at, resolved_at`

// CreateTx inserts a new issue row inside a workflow transaction.
func (r *IssueRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = issue.CreatedAt
	const query = `INSERT INTO issues
        (id, title, description, category, location_id, status, priority, urgency_score, escalation_level, due_by, is_anonymous, reporter_id, created_at, updated_at, resolved_at)
        VALUES (:id, :title, :description, :category, :location_id, :status, :priority, :urgency_score, :escalation_level, :due_by, :is_anonymous, :reporter_id, :created_at, :updated_at, :resolved_at)`
	if _, err := tx.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// GetByID fetches an issue by identifier.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetByIDTx fetches an issue from within a transaction so that
// decisions and writes observe the same snapshot.
func (r *IssueRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1 FOR UPDATE`
	var issue models.Issue
	if err := tx.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// List returns issues matching the filter plus a total count.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	base := `FROM issues`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}
	if filter.LocationID != "" {
		conditions = append(conditions, fmt.Sprintf("location_id = $%d", len(args)+1))
		args = append(args, filter.LocationID)
	}
	if filter.ReporterID != "" {
		conditions = append(conditions, fmt.Sprintf("reporter_id = $%d", len(args)+1))
		args = append(args, filter.ReporterID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "created_at DESC"
	if filter.SortBy == "urgency" {
		orderBy = "urgency_score DESC, created_at DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d`,
		issueColumns, base+clause, orderBy, size, offset)

	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	return issues, total, nil
}

// UpdateIssueParams groups the mutable scalar fields for edits.
// Nil fields are left untouched; last write wins.
type UpdateIssueParams struct {
	ID           string
	Title        *string
	Description  *string
	Category     *models.IssueCategory
	Priority     *models.IssuePriority
	UrgencyScore *int
	UpdatedAt    time.Time
}

// UpdateFieldsTx applies a partial scalar edit inside a transaction.
func (r *IssueRepository) UpdateFieldsTx(ctx context.Context, tx *sqlx.Tx, params UpdateIssueParams) error {
	setParts := []string{"updated_at = :updated_at"}
	if params.Title != nil {
		setParts = append(setParts, "title = :title")
	}
	if params.Description != nil {
		setParts = append(setParts, "description = :description")
	}
	if params.Category != nil {
		setParts = append(setParts, "category = :category")
	}
	if params.Priority != nil {
		setParts = append(setParts, "priority = :priority")
	}
	if params.UrgencyScore != nil {
		setParts = append(setParts, "urgency_score = :urgency_score")
	}
	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"title":         params.Title,
		"description":   params.Description,
		"category":      params.Category,
		"priority":      params.Priority,
		"urgency_score": params.UrgencyScore,
		"updated_at":    params.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("update issue fields: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check issue update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatusTx moves an issue between states. The WHERE clause
// guards against racing transitions: if the row no longer holds the
// expected from status, sql.ErrNoRows is returned and nothing is
// written.
func (r *IssueRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.IssueStatus, resolvedAt *time.Time, updatedAt time.Time) error {
	const query = `UPDATE issues SET status = $3, resolved_at = $4, updated_at = $5 WHERE id = $1 AND status = $2`
	result, err := tx.ExecContext(ctx, query, id, from, to, resolvedAt, updatedAt)
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check issue status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateScoreTx persists a recomputed urgency score and, when the
// escalation threshold fires, the new escalation level.
func (r *IssueRepository) UpdateScoreTx(ctx context.Context, tx *sqlx.Tx, id string, score, escalationLevel int, updatedAt time.Time) error {
	const query = `UPDATE issues SET urgency_score = $2, escalation_level = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, score, escalationLevel, updatedAt); err != nil {
		return fmt.Errorf("update issue score: %w", err)
	}
	return nil
}

// AddPhotoTx attaches evidence to an issue inside a transaction.
func (r *IssueRepository) AddPhotoTx(ctx context.Context, tx *sqlx.Tx, photo *models.Photo) error {
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO issue_photos (id, issue_id, url, kind, created_at)
        VALUES (:id, :issue_id, :url, :kind, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, photo); err != nil {
		return fmt.Errorf("add issue photo: %w", err)
	}
	return nil
}

// ListPhotos returns all evidence for an issue, oldest first.
func (r *IssueRepository) ListPhotos(ctx context.Context, issueID string) ([]models.Photo, error) {
	const query = `SELECT id, issue_id, url, kind, created_at FROM issue_photos WHERE issue_id = $1 ORDER BY created_at ASC`
	var photos []models.Photo
	if err := r.db.SelectContext(ctx, &photos, query, issueID); err != nil {
		return nil, fmt.Errorf("list issue photos: %w", err)
	}
	return photos, nil
}

// FindLocation checks the referenced campus location exists.
func (r *IssueRepository) FindLocation(ctx context.Context, id string) (*models.Location, error) {
	const query = `SELECT id, name, building, floor, created_at FROM locations WHERE id = $1`
	var location models.Location
	if err := r.db.GetContext(ctx, &location, query, id); err != nil {
		return nil, err
	}
	return &location, nil
}

// ListLocations returns all campus locations.
func (r *IssueRepository) ListLocations(ctx context.Context) ([]models.Location, error) {
	const query = `SELECT id, name, building, floor, created_at FROM locations ORDER BY building, floor, name`
	var locations []models.Location
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}
