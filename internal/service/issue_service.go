package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/dto"
	"github.com/campuscare/campuscare-api/internal/models"
	"github.com/campuscare/campuscare-api/internal/repository"
	"github.com/campuscare/campuscare-api/internal/urgency"
	"github.com/campuscare/campuscare-api/pkg/classify"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type issueStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, issue *models.Issue) error
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
	UpdateFieldsTx(ctx context.Context, tx *sqlx.Tx, params repository.UpdateIssueParams) error
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.IssueStatus, resolvedAt *time.Time, updatedAt time.Time) error
	AddPhotoTx(ctx context.Context, tx *sqlx.Tx, photo *models.Photo) error
	ListPhotos(ctx context.Context, issueID string) ([]models.Photo, error)
	FindLocation(ctx context.Context, id string) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
}

type historyStore interface {
	AppendTx(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error
	ListByIssue(ctx context.Context, issueID string) ([]models.StatusHistoryEntry, error)
}

type issueVoteStore interface {
	CountTx(ctx context.Context, tx *sqlx.Tx, issueID string) (int, error)
	Count(ctx context.Context, issueID string) (int, error)
	Exists(ctx context.Context, issueID, userID string) (bool, error)
}

type issueAssignmentStore interface {
	GetOpenByIssue(ctx context.Context, issueID string) (*models.Assignment, error)
}

type notificationWriter interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, notification *models.Notification) error
}

type issueClassifier interface {
	Classify(ctx context.Context, description string, imageURLs []string) (*classify.Suggestion, error)
}

type issueMetrics interface {
	RecordIssueCreated(category models.IssueCategory, priority models.IssuePriority)
}

// IssueService implements issue reporting, browsing, and edits
// including staff status overrides.
type IssueService struct {
	tx            txProvider
	issues        issueStore
	history       historyStore
	votes         issueVoteStore
	assignments   issueAssignmentStore
	notifications notificationWriter
	classifier    issueClassifier
	metrics       issueMetrics
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewIssueService constructs an IssueService.
func NewIssueService(
	tx txProvider,
	issues issueStore,
	history historyStore,
	votes issueVoteStore,
	assignments issueAssignmentStore,
	notifications notificationWriter,
	classifier issueClassifier,
	metrics issueMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
) *IssueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &IssueService{
		tx:            tx,
		issues:        issues,
		history:       history,
		votes:         votes,
		assignments:   assignments,
		notifications: notifications,
		classifier:    classifier,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create reports a new issue. The priority comes from the keyword
// classifier, optionally overridden by the external classification
// service when it answers in time. Classifier failures never block
// the report.
func (s *IssueService) Create(ctx context.Context, caller *models.JWTClaims, req dto.CreateIssueRequest) (*models.IssueDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}

	if _, err := s.issues.FindLocation(ctx, req.LocationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}

	priority := urgency.InitialPriority(req.Category, req.Description)
	var scoreOverride *int
	if s.classifier != nil {
		suggestion, err := s.classifier.Classify(ctx, req.Description, req.PhotoURLs)
		if err != nil {
			s.logger.Debug("classifier unavailable, using keyword priority", zap.Error(err))
		} else if suggestion != nil {
			if models.ValidPriority(models.IssuePriority(suggestion.Priority)) {
				priority = models.IssuePriority(suggestion.Priority)
			}
			if suggestion.UrgencyScore != nil && *suggestion.UrgencyScore >= 0 && *suggestion.UrgencyScore <= urgency.MaxScore {
				scoreOverride = suggestion.UrgencyScore
			}
		}
	}

	score := urgency.Score(req.Category, priority, 0, 0, 0)
	if scoreOverride != nil {
		score = *scoreOverride
	}

	now := s.now()
	issue := &models.Issue{
		Description:     req.Description,
		Category:        req.Category,
		LocationID:      req.LocationID,
		Status:          models.StatusPending,
		Priority:        priority,
		UrgencyScore:    score,
		EscalationLevel: 0,
		DueBy:           urgency.DueBy(priority, now),
		IsAnonymous:     req.IsAnonymous,
		CreatedAt:       now,
	}
	if req.Title != "" {
		issue.Title = &req.Title
	}
	if !req.IsAnonymous {
		issue.ReporterID = &caller.UserID
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.issues.CreateTx(ctx, tx, issue); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
		return nil, err
	}

	photos := make([]models.Photo, 0, len(req.PhotoURLs))
	for _, url := range req.PhotoURLs {
		photo := models.Photo{IssueID: issue.ID, URL: url, Kind: models.PhotoBefore, CreatedAt: now}
		if err = s.issues.AddPhotoTx(ctx, tx, &photo); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach photo")
			return nil, err
		}
		photos = append(photos, photo)
	}

	if err = s.history.AppendTx(ctx, tx, &models.StatusHistoryEntry{
		IssueID:    issue.ID,
		FromStatus: nil,
		ToStatus:   models.StatusPending,
		ChangedBy:  caller.UserID,
		CreatedAt:  now,
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status history")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit issue")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordIssueCreated(issue.Category, issue.Priority)
	}
	s.logger.Info("issue created",
		zap.String("issue_id", issue.ID),
		zap.String("category", string(issue.Category)),
		zap.String("priority", string(issue.Priority)),
		zap.Int("urgency_score", issue.UrgencyScore))

	return &models.IssueDetail{Issue: *issue, Photos: photos}, nil
}

// Get returns an issue with its photos, vote context, and open
// assignment.
func (s *IssueService) Get(ctx context.Context, callerID, issueID string) (*models.IssueDetail, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}

	detail := &models.IssueDetail{Issue: *issue}

	if detail.Photos, err = s.issues.ListPhotos(ctx, issueID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load photos")
	}
	if detail.VoteCount, err = s.votes.Count(ctx, issueID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count votes")
	}
	if callerID != "" {
		if detail.CallerHasVoted, err = s.votes.Exists(ctx, issueID, callerID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check vote")
		}
	}

	if location, locErr := s.issues.FindLocation(ctx, issue.LocationID); locErr == nil {
		detail.LocationName = location.Name
	}

	assignment, err := s.assignments.GetOpenByIssue(ctx, issueID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment != nil {
		detail.OpenAssignment = assignment
	}

	return detail, nil
}

// List browses issues by filter.
func (s *IssueService) List(ctx context.Context, query dto.IssueQuery) ([]models.Issue, *models.Pagination, error) {
	filter := models.IssueFilter{
		Status:     models.IssueStatus(query.Status),
		Category:   models.IssueCategory(query.Category),
		Priority:   models.IssuePriority(query.Priority),
		LocationID: query.Location,
		SortBy:     query.Sort,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", filter.Status))
	}
	return s.list(ctx, filter)
}

// ListMine returns the caller's own reports, newest first.
func (s *IssueService) ListMine(ctx context.Context, callerID string, query dto.IssueQuery) ([]models.Issue, *models.Pagination, error) {
	filter := models.IssueFilter{
		Status:     models.IssueStatus(query.Status),
		ReporterID: callerID,
		SortBy:     query.Sort,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	return s.list(ctx, filter)
}

func (s *IssueService) list(ctx context.Context, filter models.IssueFilter) ([]models.Issue, *models.Pagination, error) {
	issues, total, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return issues, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// History returns the append-only status ledger for an issue.
func (s *IssueService) History(ctx context.Context, issueID string) ([]models.StatusHistoryEntry, error) {
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	entries, err := s.history.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	return entries, nil
}

// Update applies a partial edit. Reporters may edit title,
// description, and priority of their own issue while it is still
// PENDING. Staff and admins may edit any field at any time,
// including a direct status override from any non-terminal state. A
// priority edit recomputes the urgency score against the current
// vote count, escalation level, and age.
func (s *IssueService) Update(ctx context.Context, caller *models.JWTClaims, issueID string, req dto.UpdateIssueRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	if req.Category != nil && !models.ValidCategory(*req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", *req.Category))
	}
	if req.Priority != nil && !models.ValidPriority(*req.Priority) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", *req.Priority))
	}
	if req.Status != nil && !models.ValidStatus(*req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", *req.Status))
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}

	isStaff := caller.IsStaff()
	isReporter := issue.ReporterID != nil && *issue.ReporterID == caller.UserID

	if !isStaff {
		if !isReporter {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the reporter or staff may edit this issue")
		}
		if issue.Status != models.StatusPending {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "reporter edits are only allowed while the issue is pending")
		}
		if req.Status != nil || req.Category != nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "reporters may only edit title, description, and priority")
		}
	}

	if req.Status != nil {
		if issue.Status.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("issue is already %s", issue.Status))
		}
		if *req.Status == issue.Status {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "issue already holds that status")
		}
	}

	now := s.now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	params := repository.UpdateIssueParams{
		ID:          issueID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		UpdatedAt:   now,
	}

	if req.Priority != nil && *req.Priority != issue.Priority {
		voteCount, countErr := s.votes.CountTx(ctx, tx, issueID)
		if countErr != nil {
			err = appErrors.Wrap(countErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count votes")
			return nil, err
		}
		category := issue.Category
		if req.Category != nil {
			category = *req.Category
		}
		score := urgency.Score(category, *req.Priority, voteCount, issue.EscalationLevel, urgency.AgeHours(issue.CreatedAt, now))
		params.UrgencyScore = &score
	}

	if err = s.issues.UpdateFieldsTx(ctx, tx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "issue not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue")
		return nil, err
	}

	if req.Status != nil {
		var resolvedAt *time.Time
		if *req.Status == models.StatusResolved {
			resolvedAt = &now
		}
		if err = s.issues.UpdateStatusTx(ctx, tx, issueID, issue.Status, *req.Status, resolvedAt, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = appErrors.Clone(appErrors.ErrInvalidTransition, "issue status changed concurrently")
				return nil, err
			}
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue status")
			return nil, err
		}

		from := issue.Status
		var note *string
		if req.Note != "" {
			note = &req.Note
		}
		if err = s.history.AppendTx(ctx, tx, &models.StatusHistoryEntry{
			IssueID:    issueID,
			FromStatus: &from,
			ToStatus:   *req.Status,
			ChangedBy:  caller.UserID,
			Note:       note,
			CreatedAt:  now,
		}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status history")
			return nil, err
		}

		if issue.ReporterID != nil && *issue.ReporterID != caller.UserID {
			if err = s.notifications.CreateTx(ctx, tx, &models.Notification{
				UserID:  *issue.ReporterID,
				Type:    models.NotificationStatusChange,
				IssueID: &issueID,
				Message: fmt.Sprintf("Your report moved from %s to %s.", from, *req.Status),
			}); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit issue update")
		return nil, err
	}

	updated, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload issue")
	}
	return updated, nil
}

// Locations lists the campus locations reports can reference.
func (s *IssueService) Locations(ctx context.Context) ([]models.Location, error) {
	locations, err := s.issues.ListLocations(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list locations")
	}
	return locations, nil
}
