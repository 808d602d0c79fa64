package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuscare/campuscare-api/internal/models"
)

// NotificationRepository persists durable in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationInsert = `INSERT INTO notifications (id, user_id, type, issue_id, message, read_at, created_at)
        VALUES (:id, :user_id, :type, :issue_id, :message, :read_at, :created_at)`

// CreateTx writes a notification inside a workflow transaction so it
// commits or rolls back with the event that caused it.
func (r *NotificationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, notification *models.Notification) error {
	prepareNotification(notification)
	if _, err := tx.NamedExecContext(ctx, notificationInsert, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// Create writes a notification outside any transaction.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	prepareNotification(notification)
	if _, err := r.db.NamedExecContext(ctx, notificationInsert, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func prepareNotification(n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
}

// List returns a user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := `FROM notifications WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	if filter.UnreadOnly {
		base += " AND read_at IS NULL"
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

	query := fmt.Sprintf(`SELECT id, user_id, type, issue_id, message, read_at, created_at %s
        ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkRead stamps a single notification as read. Read is monotonic:
// an already read notification keeps its original timestamp.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, readAt time.Time) (bool, error) {
	const query = `UPDATE notifications SET read_at = $3 WHERE id = $1 AND user_id = $2 AND read_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, userID, readAt)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check notification read rows: %w", err)
	}
	return rows > 0, nil
}

// MarkAllRead stamps every unread notification for the user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error) {
	const query = `UPDATE notifications SET read_at = $2 WHERE user_id = $1 AND read_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, readAt)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check mark all rows: %w", err)
	}
	return int(rows), nil
}

// CountUnread returns the unread badge count for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
