package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteRepositoryInsertTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVoteRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issue_votes").
		WithArgs(sqlmock.AnyArg(), "issue-1", "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.Beginx()
	require.NoError(t, err)

	inserted, err := repo.InsertTx(context.Background(), tx, "issue-1", "user-1")
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestVoteRepositoryInsertTxExistingVote(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVoteRepository(db)

	// ON CONFLICT DO NOTHING reports zero affected rows.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issue_votes").WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)

	inserted, err := repo.InsertTx(context.Background(), tx, "issue-1", "user-1")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestVoteRepositoryDeleteTxMissingVote(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVoteRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM issue_votes").
		WithArgs("issue-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)

	removed, err := repo.DeleteTx(context.Background(), tx, "issue-1", "user-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestVoteRepositoryCountTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVoteRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("issue-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	tx, err := db.Beginx()
	require.NoError(t, err)

	count, err := repo.CountTx(context.Background(), tx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestVoteRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVoteRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("issue-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "issue-1", "user-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
