package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/campuscare-api/internal/models"
)

func TestNotificationRepositoryCreateTxSetsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.Beginx()
	require.NoError(t, err)

	issueID := "issue-1"
	notification := &models.Notification{
		UserID:  "reporter-1",
		Type:    models.NotificationEscalation,
		IssueID: &issueID,
		Message: "Your report reached 5 votes and has been escalated.",
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, notification))
	assert.NotEmpty(t, notification.ID)
	assert.False(t, notification.CreatedAt.IsZero())
}

func TestNotificationRepositoryMarkReadIsMonotonic(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	// Already read: the guard matches nothing and the original
	// timestamp is kept.
	mock.ExpectExec("UPDATE notifications SET read_at").
		WithArgs("notif-1", "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.MarkRead(context.Background(), "notif-1", "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET read_at").
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.MarkAllRead(context.Background(), "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNotificationRepositoryListUnreadOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "issue_id", "message", "read_at", "created_at"}).
		AddRow("notif-1", "user-1", "ESCALATION", "issue-1", "escalated", nil, now)
	mock.ExpectQuery("read_at IS NULL").WithArgs("user-1").WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	notifications, total, err := repo.List(context.Background(), models.NotificationFilter{
		UserID:     "user-1",
		UnreadOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.NotificationEscalation, notifications[0].Type)
}
