package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/campuscare-api/internal/dto"
	"github.com/campuscare/campuscare-api/internal/models"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

type assignmentStoreStub struct {
	assignment *models.Assignment
	open       *models.Assignment
	details    []models.AssignmentDetail

	created     *models.Assignment
	startErr    error
	completeErr error
	startedAt   *time.Time
	completed   bool
	note        string
	photoURL    string
}

func (a *assignmentStoreStub) CreateTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error {
	assignment.ID = "assignment-1"
	a.created = assignment
	return nil
}

func (a *assignmentStoreStub) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a.assignment == nil || a.assignment.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *a.assignment
	return &copy, nil
}

func (a *assignmentStoreStub) GetOpenByIssue(ctx context.Context, issueID string) (*models.Assignment, error) {
	if a.open == nil {
		return nil, sql.ErrNoRows
	}
	return a.open, nil
}

func (a *assignmentStoreStub) StartTx(ctx context.Context, tx *sqlx.Tx, id string, startedAt time.Time) error {
	if a.startErr != nil {
		return a.startErr
	}
	a.startedAt = &startedAt
	return nil
}

func (a *assignmentStoreStub) CompleteTx(ctx context.Context, tx *sqlx.Tx, id string, completedAt time.Time, note, photoURL string) error {
	if a.completeErr != nil {
		return a.completeErr
	}
	a.completed = true
	a.note = note
	a.photoURL = photoURL
	return nil
}

func (a *assignmentStoreStub) ListByStaff(ctx context.Context, staffID string, openOnly bool) ([]models.AssignmentDetail, error) {
	return a.details, nil
}

type assignmentIssueStoreStub struct {
	issue *models.Issue

	statusFrom models.IssueStatus
	statusTo   models.IssueStatus
	resolvedAt *time.Time
	statusErr  error
	photos     []*models.Photo
}

func (s *assignmentIssueStoreStub) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Issue, error) {
	if s.issue == nil || s.issue.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *s.issue
	return &copy, nil
}

func (s *assignmentIssueStoreStub) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.IssueStatus, resolvedAt *time.Time, updatedAt time.Time) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.statusFrom = from
	s.statusTo = to
	s.resolvedAt = resolvedAt
	return nil
}

func (s *assignmentIssueStoreStub) AddPhotoTx(ctx context.Context, tx *sqlx.Tx, photo *models.Photo) error {
	s.photos = append(s.photos, photo)
	return nil
}

type assignmentUserStoreStub struct {
	users map[string]*models.User

	reputationUser  string
	reputationDelta int
}

func (u *assignmentUserStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := u.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (u *assignmentUserStoreStub) AddReputationTx(ctx context.Context, tx *sqlx.Tx, userID string, delta int, updatedAt time.Time) error {
	u.reputationUser = userID
	u.reputationDelta += delta
	return nil
}

type historyStoreStub struct {
	entries []*models.StatusHistoryEntry
	err     error
}

func (h *historyStoreStub) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *historyStoreStub) ListByIssue(ctx context.Context, issueID string) ([]models.StatusHistoryEntry, error) {
	entries := make([]models.StatusHistoryEntry, 0, len(h.entries))
	for _, entry := range h.entries {
		if entry.IssueID == issueID {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

type emailNotifierStub struct {
	sent []string
}

func (e *emailNotifierStub) Notify(ctx context.Context, userID, subject, body string) {
	e.sent = append(e.sent, userID)
}

func staffClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStaff}
}

func staffUsers() *assignmentUserStoreStub {
	return &assignmentUserStoreStub{users: map[string]*models.User{
		"staff-1":    {ID: "staff-1", Email: "staff-1@campus.edu", Role: models.RoleStaff},
		"reporter-1": {ID: "reporter-1", Email: "reporter-1@campus.edu", Role: models.RoleReporter},
	}}
}

func TestAssignmentCreate(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	assignments := &assignmentStoreStub{}
	issues := &assignmentIssueStoreStub{issue: pendingIssue("issue-1", "reporter-1")}
	history := &historyStoreStub{}
	notifications := &notificationWriterStub{}
	emails := &emailNotifierStub{}

	svc := NewAssignmentService(tx, assignments, issues, staffUsers(), history, notifications, emails, nil, nil)
	assignment, err := svc.Create(context.Background(), staffClaims("admin-1"), dto.CreateAssignmentRequest{
		IssueID: "issue-1",
		StaffID: "staff-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "assignment-1", assignment.ID)
	assert.Equal(t, "staff-1", assignment.StaffID)
	assert.Equal(t, "admin-1", assignment.AssignedBy)

	assert.Equal(t, models.StatusPending, issues.statusFrom)
	assert.Equal(t, models.StatusAssigned, issues.statusTo)

	require.Len(t, history.entries, 1)
	assert.Equal(t, models.StatusAssigned, history.entries[0].ToStatus)
	assert.Equal(t, "admin-1", history.entries[0].ChangedBy)

	require.Len(t, notifications.created, 2)
	assert.Equal(t, "staff-1", notifications.created[0].UserID)
	assert.Equal(t, "reporter-1", notifications.created[1].UserID)

	assert.Equal(t, []string{"staff-1", "reporter-1"}, emails.sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentCreateNonStaffForbidden(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	svc := NewAssignmentService(tx, &assignmentStoreStub{}, &assignmentIssueStoreStub{}, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Create(context.Background(), reporterClaims("reporter-1"), dto.CreateAssignmentRequest{
		IssueID: "issue-1",
		StaffID: "staff-1",
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAssignmentCreateAssigneeNotStaff(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	svc := NewAssignmentService(tx, &assignmentStoreStub{}, &assignmentIssueStoreStub{}, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Create(context.Background(), staffClaims("admin-1"), dto.CreateAssignmentRequest{
		IssueID: "issue-1",
		StaffID: "reporter-1",
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAssignmentCreateOpenAssignmentConflict(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	assignments := &assignmentStoreStub{open: &models.Assignment{ID: "assignment-0", IssueID: "issue-1"}}
	svc := NewAssignmentService(tx, assignments, &assignmentIssueStoreStub{}, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Create(context.Background(), staffClaims("admin-1"), dto.CreateAssignmentRequest{
		IssueID: "issue-1",
		StaffID: "staff-1",
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAssignmentCreateTerminalIssueRejected(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusRejected
	issues := &assignmentIssueStoreStub{issue: issue}

	svc := NewAssignmentService(tx, &assignmentStoreStub{}, issues, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Create(context.Background(), staffClaims("admin-1"), dto.CreateAssignmentRequest{
		IssueID: "issue-1",
		StaffID: "staff-1",
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStart(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusAssigned
	assignments := &assignmentStoreStub{assignment: &models.Assignment{
		ID:      "assignment-1",
		IssueID: "issue-1",
		StaffID: "staff-1",
	}}
	issues := &assignmentIssueStoreStub{issue: issue}
	history := &historyStoreStub{}
	notifications := &notificationWriterStub{}

	svc := NewAssignmentService(tx, assignments, issues, staffUsers(), history, notifications, nil, nil, nil)
	assignment, err := svc.Start(context.Background(), staffClaims("staff-1"), "assignment-1")
	require.NoError(t, err)

	require.NotNil(t, assignment.StartedAt)
	assert.Equal(t, models.StatusAssigned, issues.statusFrom)
	assert.Equal(t, models.StatusInProgress, issues.statusTo)
	require.Len(t, history.entries, 1)
	require.Len(t, notifications.created, 1)
	assert.Equal(t, "reporter-1", notifications.created[0].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStartWrongStaffForbidden(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	assignments := &assignmentStoreStub{assignment: &models.Assignment{
		ID:      "assignment-1",
		IssueID: "issue-1",
		StaffID: "staff-1",
	}}

	svc := NewAssignmentService(tx, assignments, &assignmentIssueStoreStub{}, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Start(context.Background(), staffClaims("staff-2"), "assignment-1")

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAssignmentStartAlreadyStarted(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	started := time.Now().UTC()
	assignments := &assignmentStoreStub{assignment: &models.Assignment{
		ID:        "assignment-1",
		IssueID:   "issue-1",
		StaffID:   "staff-1",
		StartedAt: &started,
	}}

	svc := NewAssignmentService(tx, assignments, &assignmentIssueStoreStub{}, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Start(context.Background(), staffClaims("staff-1"), "assignment-1")

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestAssignmentComplete(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	started := time.Now().UTC().Add(-time.Hour)
	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusInProgress
	assignments := &assignmentStoreStub{assignment: &models.Assignment{
		ID:        "assignment-1",
		IssueID:   "issue-1",
		StaffID:   "staff-1",
		StartedAt: &started,
	}}
	issues := &assignmentIssueStoreStub{issue: issue}
	users := staffUsers()
	history := &historyStoreStub{}
	notifications := &notificationWriterStub{}
	emails := &emailNotifierStub{}

	svc := NewAssignmentService(tx, assignments, issues, users, history, notifications, emails, nil, nil)
	assignment, err := svc.Complete(context.Background(), staffClaims("staff-1"), "assignment-1", dto.CompleteAssignmentRequest{
		CompletionNote:     "Cleaned and disinfected the area.",
		CompletionPhotoURL: "https://cdn.campus.edu/photos/after-1.jpg",
	})
	require.NoError(t, err)

	require.NotNil(t, assignment.CompletedAt)
	assert.True(t, assignments.completed)

	assert.Equal(t, models.StatusResolved, issues.statusTo)
	require.NotNil(t, issues.resolvedAt)

	require.Len(t, issues.photos, 1)
	assert.Equal(t, models.PhotoAfter, issues.photos[0].Kind)

	assert.Equal(t, "staff-1", users.reputationUser)
	assert.Equal(t, 10, users.reputationDelta)

	require.Len(t, history.entries, 1)
	require.NotNil(t, history.entries[0].Note)
	assert.Equal(t, "Cleaned and disinfected the area.", *history.entries[0].Note)

	require.Len(t, notifications.created, 1)
	assert.Equal(t, "reporter-1", notifications.created[0].UserID)
	assert.Equal(t, []string{"reporter-1"}, emails.sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentCompleteNotStarted(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	assignments := &assignmentStoreStub{assignment: &models.Assignment{
		ID:      "assignment-1",
		IssueID: "issue-1",
		StaffID: "staff-1",
	}}

	svc := NewAssignmentService(tx, assignments, &assignmentIssueStoreStub{}, staffUsers(),
		&historyStoreStub{}, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Complete(context.Background(), staffClaims("staff-1"), "assignment-1", dto.CompleteAssignmentRequest{
		CompletionNote:     "Cleaned and disinfected the area.",
		CompletionPhotoURL: "https://cdn.campus.edu/photos/after-1.jpg",
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "must be started")
}

func TestAssignmentCompleteRollsBackOnHistoryFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	started := time.Now().UTC().Add(-time.Hour)
	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusInProgress
	assignments := &assignmentStoreStub{assignment: &models.Assignment{
		ID:        "assignment-1",
		IssueID:   "issue-1",
		StaffID:   "staff-1",
		StartedAt: &started,
	}}
	users := staffUsers()
	history := &historyStoreStub{err: errors.New("insert failed")}

	svc := NewAssignmentService(tx, assignments, &assignmentIssueStoreStub{issue: issue}, users,
		history, &notificationWriterStub{}, nil, nil, nil)
	_, err := svc.Complete(context.Background(), staffClaims("staff-1"), "assignment-1", dto.CompleteAssignmentRequest{
		CompletionNote:     "Cleaned and disinfected the area.",
		CompletionPhotoURL: "https://cdn.campus.edu/photos/after-1.jpg",
	})
	require.Error(t, err)

	assert.Equal(t, 0, users.reputationDelta)
	require.NoError(t, mock.ExpectationsWereMet())
}
