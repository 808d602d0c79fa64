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

func TestHistoryRepositoryAppendTxSetsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issue_status_history").WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.Beginx()
	require.NoError(t, err)

	entry := &models.StatusHistoryEntry{
		IssueID:   "issue-1",
		ToStatus:  models.StatusPending,
		ChangedBy: "reporter-1",
	}
	require.NoError(t, repo.AppendTx(context.Background(), tx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestHistoryRepositoryListByIssueOldestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "issue_id", "from_status", "to_status", "changed_by", "note", "created_at"}).
		AddRow("entry-1", "issue-1", nil, "PENDING", "reporter-1", nil, now.Add(-time.Hour)).
		AddRow("entry-2", "issue-1", "PENDING", "ASSIGNED", "admin-1", nil, now)
	mock.ExpectQuery("ORDER BY created_at ASC, id ASC").WithArgs("issue-1").WillReturnRows(rows)

	entries, err := repo.ListByIssue(context.Background(), "issue-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].FromStatus)
	assert.Equal(t, models.StatusAssigned, entries[1].ToStatus)
}
