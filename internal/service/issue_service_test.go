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
	"github.com/campuscare/campuscare-api/internal/repository"
	"github.com/campuscare/campuscare-api/internal/urgency"
	"github.com/campuscare/campuscare-api/pkg/classify"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

type issueStoreStub struct {
	issue     *models.Issue
	location  *models.Location
	locations []models.Location
	photos    []models.Photo

	created      *models.Issue
	addedPhotos  []*models.Photo
	updateParams *repository.UpdateIssueParams
	statusFrom   models.IssueStatus
	statusTo     models.IssueStatus
	statusErr    error
}

func (s *issueStoreStub) CreateTx(ctx context.Context, tx *sqlx.Tx, issue *models.Issue) error {
	issue.ID = "issue-1"
	s.created = issue
	return nil
}

func (s *issueStoreStub) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	if s.issue == nil || s.issue.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *s.issue
	return &copy, nil
}

func (s *issueStoreStub) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	if s.issue == nil {
		return nil, 0, nil
	}
	return []models.Issue{*s.issue}, 1, nil
}

func (s *issueStoreStub) UpdateFieldsTx(ctx context.Context, tx *sqlx.Tx, params repository.UpdateIssueParams) error {
	s.updateParams = &params
	return nil
}

func (s *issueStoreStub) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.IssueStatus, resolvedAt *time.Time, updatedAt time.Time) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.statusFrom = from
	s.statusTo = to
	if s.issue != nil {
		s.issue.Status = to
	}
	return nil
}

func (s *issueStoreStub) AddPhotoTx(ctx context.Context, tx *sqlx.Tx, photo *models.Photo) error {
	s.addedPhotos = append(s.addedPhotos, photo)
	return nil
}

func (s *issueStoreStub) ListPhotos(ctx context.Context, issueID string) ([]models.Photo, error) {
	return s.photos, nil
}

func (s *issueStoreStub) FindLocation(ctx context.Context, id string) (*models.Location, error) {
	if s.location == nil || s.location.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.location, nil
}

func (s *issueStoreStub) ListLocations(ctx context.Context) ([]models.Location, error) {
	return s.locations, nil
}

type issueVoteStoreStub struct {
	count    int
	hasVoted bool
}

func (v *issueVoteStoreStub) CountTx(ctx context.Context, tx *sqlx.Tx, issueID string) (int, error) {
	return v.count, nil
}

func (v *issueVoteStoreStub) Count(ctx context.Context, issueID string) (int, error) {
	return v.count, nil
}

func (v *issueVoteStoreStub) Exists(ctx context.Context, issueID, userID string) (bool, error) {
	return v.hasVoted, nil
}

type issueAssignmentStoreStub struct {
	open *models.Assignment
}

func (a *issueAssignmentStoreStub) GetOpenByIssue(ctx context.Context, issueID string) (*models.Assignment, error) {
	if a.open == nil {
		return nil, sql.ErrNoRows
	}
	return a.open, nil
}

type classifierStub struct {
	suggestion *classify.Suggestion
	err        error
}

func (c *classifierStub) Classify(ctx context.Context, description string, imageURLs []string) (*classify.Suggestion, error) {
	return c.suggestion, c.err
}

type issueMetricsStub struct {
	created int
}

func (m *issueMetricsStub) RecordIssueCreated(category models.IssueCategory, priority models.IssuePriority) {
	m.created++
}

func campusLocation() *models.Location {
	return &models.Location{ID: "loc-1", Name: "Block A washroom", Building: "Block A", Floor: 2}
}

func createIssueRequest() dto.CreateIssueRequest {
	return dto.CreateIssueRequest{
		Title:       "Overflowing bin",
		Description: "The bin next to the entrance is overflowing.",
		Category:    models.CategoryWashroom,
		LocationID:  "loc-1",
		PhotoURLs:   []string{"https://cdn.campus.edu/photos/before-1.jpg"},
	}
}

func newIssueServiceForTest(tx txProvider, issues *issueStoreStub, votes *issueVoteStoreStub,
	classifier issueClassifier, metrics *issueMetricsStub, history *historyStoreStub,
	notifications *notificationWriterStub) *IssueService {
	var m issueMetrics
	if metrics != nil {
		m = metrics
	}
	return NewIssueService(tx, issues, history, votes, &issueAssignmentStoreStub{},
		notifications, classifier, m, nil, nil)
}

func TestIssueCreate(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issues := &issueStoreStub{location: campusLocation()}
	history := &historyStoreStub{}
	metrics := &issueMetricsStub{}

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, metrics, history, &notificationWriterStub{})
	detail, err := svc.Create(context.Background(), reporterClaims("reporter-1"), createIssueRequest())
	require.NoError(t, err)

	assert.Equal(t, "issue-1", detail.ID)
	assert.Equal(t, models.StatusPending, detail.Status)

	// "overflowing" trips the critical keyword list.
	assert.Equal(t, models.PriorityCritical, detail.Priority)
	assert.Equal(t, urgency.Score(models.CategoryWashroom, models.PriorityCritical, 0, 0, 0), detail.UrgencyScore)
	assert.Equal(t, detail.CreatedAt.Add(2*time.Hour), detail.DueBy)

	require.NotNil(t, detail.ReporterID)
	assert.Equal(t, "reporter-1", *detail.ReporterID)

	require.Len(t, issues.addedPhotos, 1)
	assert.Equal(t, models.PhotoBefore, issues.addedPhotos[0].Kind)

	require.Len(t, history.entries, 1)
	assert.Nil(t, history.entries[0].FromStatus)
	assert.Equal(t, models.StatusPending, history.entries[0].ToStatus)

	assert.Equal(t, 1, metrics.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCreateAnonymousHidesReporter(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issues := &issueStoreStub{location: campusLocation()}
	req := createIssueRequest()
	req.IsAnonymous = true

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	detail, err := svc.Create(context.Background(), reporterClaims("reporter-1"), req)
	require.NoError(t, err)

	assert.Nil(t, detail.ReporterID)
	assert.True(t, detail.IsAnonymous)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCreateClassifierOverride(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issues := &issueStoreStub{location: campusLocation()}
	override := 87
	classifier := &classifierStub{suggestion: &classify.Suggestion{Priority: "HIGH", UrgencyScore: &override}}

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, classifier, nil, &historyStoreStub{}, &notificationWriterStub{})
	detail, err := svc.Create(context.Background(), reporterClaims("reporter-1"), createIssueRequest())
	require.NoError(t, err)

	assert.Equal(t, models.PriorityHigh, detail.Priority)
	assert.Equal(t, 87, detail.UrgencyScore)
	assert.Equal(t, detail.CreatedAt.Add(12*time.Hour), detail.DueBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCreateClassifierFailureFallsBack(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issues := &issueStoreStub{location: campusLocation()}
	classifier := &classifierStub{err: errors.New("service unavailable")}

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, classifier, nil, &historyStoreStub{}, &notificationWriterStub{})
	detail, err := svc.Create(context.Background(), reporterClaims("reporter-1"), createIssueRequest())
	require.NoError(t, err)

	assert.Equal(t, models.PriorityCritical, detail.Priority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCreateUnknownLocation(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	svc := newIssueServiceForTest(tx, &issueStoreStub{}, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Create(context.Background(), reporterClaims("reporter-1"), createIssueRequest())

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestIssueGet(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	issue := pendingIssue("issue-1", "reporter-1")
	issue.LocationID = "loc-1"
	issues := &issueStoreStub{
		issue:    issue,
		location: campusLocation(),
		photos:   []models.Photo{{ID: "photo-1", IssueID: "issue-1", Kind: models.PhotoBefore}},
	}
	votes := &issueVoteStoreStub{count: 3, hasVoted: true}

	svc := newIssueServiceForTest(tx, issues, votes, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	detail, err := svc.Get(context.Background(), "voter-1", "issue-1")
	require.NoError(t, err)

	assert.Equal(t, 3, detail.VoteCount)
	assert.True(t, detail.CallerHasVoted)
	assert.Equal(t, "Block A washroom", detail.LocationName)
	require.Len(t, detail.Photos, 1)
}

func TestIssueUpdateReporterEditsPending(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issues := &issueStoreStub{issue: pendingIssue("issue-1", "reporter-1")}
	description := "The situation has gotten noticeably worse."

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), reporterClaims("reporter-1"), "issue-1", dto.UpdateIssueRequest{
		Description: &description,
	})
	require.NoError(t, err)

	require.NotNil(t, issues.updateParams)
	assert.Equal(t, &description, issues.updateParams.Description)
	assert.Nil(t, issues.updateParams.UrgencyScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueUpdateReporterBlockedAfterPending(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusAssigned
	issues := &issueStoreStub{issue: issue}
	description := "The situation has gotten noticeably worse."

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), reporterClaims("reporter-1"), "issue-1", dto.UpdateIssueRequest{
		Description: &description,
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestIssueUpdateReporterCannotTouchStatus(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	issues := &issueStoreStub{issue: pendingIssue("issue-1", "reporter-1")}
	status := models.StatusResolved

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), reporterClaims("reporter-1"), "issue-1", dto.UpdateIssueRequest{
		Status: &status,
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestIssueUpdateStrangerForbidden(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	issues := &issueStoreStub{issue: pendingIssue("issue-1", "reporter-1")}
	title := "Updated title"

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), reporterClaims("reporter-2"), "issue-1", dto.UpdateIssueRequest{
		Title: &title,
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestIssueUpdatePriorityRecomputesScore(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issue := pendingIssue("issue-1", "reporter-1")
	issue.EscalationLevel = 1
	issue.CreatedAt = time.Now().UTC().Add(-13 * time.Hour)
	issues := &issueStoreStub{issue: issue}
	votes := &issueVoteStoreStub{count: 4}
	priority := models.PriorityCritical

	svc := newIssueServiceForTest(tx, issues, votes, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), reporterClaims("reporter-1"), "issue-1", dto.UpdateIssueRequest{
		Priority: &priority,
	})
	require.NoError(t, err)

	require.NotNil(t, issues.updateParams)
	require.NotNil(t, issues.updateParams.UrgencyScore)
	want := urgency.Score(issue.Category, models.PriorityCritical, 4, 1, 13)
	assert.Equal(t, want, *issues.updateParams.UrgencyScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueUpdateStaffStatusOverride(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusInProgress
	issues := &issueStoreStub{issue: issue}
	history := &historyStoreStub{}
	notifications := &notificationWriterStub{}
	status := models.StatusRejected

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, history, notifications)
	_, err := svc.Update(context.Background(), staffClaims("staff-1"), "issue-1", dto.UpdateIssueRequest{
		Status: &status,
		Note:   "Duplicate of an earlier report.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, issues.statusFrom)
	assert.Equal(t, models.StatusRejected, issues.statusTo)

	require.Len(t, history.entries, 1)
	require.NotNil(t, history.entries[0].FromStatus)
	assert.Equal(t, models.StatusInProgress, *history.entries[0].FromStatus)
	require.NotNil(t, history.entries[0].Note)

	require.Len(t, notifications.created, 1)
	assert.Equal(t, "reporter-1", notifications.created[0].UserID)
	assert.Equal(t, models.NotificationStatusChange, notifications.created[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueUpdateTerminalStatusRejected(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	issue := pendingIssue("issue-1", "reporter-1")
	issue.Status = models.StatusResolved
	issues := &issueStoreStub{issue: issue}
	status := models.StatusPending

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), staffClaims("staff-1"), "issue-1", dto.UpdateIssueRequest{
		Status: &status,
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestIssueUpdateSameStatusRejected(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	issues := &issueStoreStub{issue: pendingIssue("issue-1", "reporter-1")}
	status := models.StatusPending

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), staffClaims("staff-1"), "issue-1", dto.UpdateIssueRequest{
		Status: &status,
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestIssueUpdateStatusRaceRollsBack(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	issue := pendingIssue("issue-1", "reporter-1")
	issues := &issueStoreStub{issue: issue, statusErr: sql.ErrNoRows}
	status := models.StatusRejected

	svc := newIssueServiceForTest(tx, issues, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.Update(context.Background(), staffClaims("staff-1"), "issue-1", dto.UpdateIssueRequest{
		Status: &status,
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueHistoryUnknownIssue(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	svc := newIssueServiceForTest(tx, &issueStoreStub{}, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, err := svc.History(context.Background(), "missing")

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestIssueListRejectsUnknownStatus(t *testing.T) {
	tx, _ := newTxProviderMock(t)

	svc := newIssueServiceForTest(tx, &issueStoreStub{}, &issueVoteStoreStub{}, nil, nil, &historyStoreStub{}, &notificationWriterStub{})
	_, _, err := svc.List(context.Background(), dto.IssueQuery{Status: "UNKNOWN"})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
