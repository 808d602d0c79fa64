package models

import "time"

// NotificationType classifies inbox messages.
type NotificationType string

const (
	NotificationAssignment   NotificationType = "ASSIGNMENT"
	NotificationStatusChange NotificationType = "STATUS_CHANGE"
	NotificationEscalation   NotificationType = "ESCALATION"
)

// Notification is a durable inbox row consumed by polling clients.
// ReadAt is monotonic: once set it is never cleared.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	IssueID   *string          `db:"issue_id" json:"issue_id,omitempty"`
	Type      NotificationType `db:"type" json:"type"`
	Message   string           `db:"message" json:"message"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
}

// NotificationFilter captures inbox list criteria.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
