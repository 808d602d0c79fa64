package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/campuscare-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func issueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "category", "location_id", "status", "priority",
		"urgency_score", "escalation_level", "due_by", "is_anonymous", "reporter_id",
		"created_at", "updated_at", "resolved_at",
	})
}

func TestIssueRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	rows := issueRows().AddRow("issue-1", nil, "overflowing bin", "WASHROOM", "loc-1",
		"PENDING", "CRITICAL", 55, 0, now.Add(2*time.Hour), false, "reporter-1", now, now, nil)
	mock.ExpectQuery("SELECT id, title").WithArgs("issue-1").WillReturnRows(rows)

	issue, err := repo.GetByID(context.Background(), "issue-1")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryWashroom, issue.Category)
	assert.Equal(t, 55, issue.UrgencyScore)
}

func TestIssueRepositoryCreateTxSetsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issues").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	issue := &models.Issue{
		Description: "overflowing bin near the entrance",
		Category:    models.CategoryWashroom,
		LocationID:  "loc-1",
		Status:      models.StatusPending,
		Priority:    models.PriorityCritical,
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, issue))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, issue.ID)
	assert.False(t, issue.CreatedAt.IsZero())
	assert.Equal(t, issue.CreatedAt, issue.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryUpdateStatusTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues SET status").
		WithArgs("issue-1", models.StatusPending, models.StatusAssigned, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatusTx(context.Background(), tx, "issue-1",
		models.StatusPending, models.StatusAssigned, nil, now))
}

func TestIssueRepositoryUpdateStatusTxGuardsRacingTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)
	err = repo.UpdateStatusTx(context.Background(), tx, "issue-1",
		models.StatusPending, models.StatusAssigned, nil, time.Now().UTC())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIssueRepositoryUpdateFieldsTxMissingIssue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues SET updated_at").WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)

	title := "New title"
	err = repo.UpdateFieldsTx(context.Background(), tx, UpdateIssueParams{
		ID:        "missing",
		Title:     &title,
		UpdatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIssueRepositoryListSortsByUrgency(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	rows := issueRows().AddRow("issue-1", nil, "overflowing bin", "WASHROOM", "loc-1",
		"PENDING", "CRITICAL", 55, 0, now, false, nil, now, now, nil)
	mock.ExpectQuery("ORDER BY urgency_score DESC, created_at DESC").
		WithArgs(models.StatusPending).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	issues, total, err := repo.List(context.Background(), models.IssueFilter{
		Status: models.StatusPending,
		SortBy: "urgency",
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, total)
}
