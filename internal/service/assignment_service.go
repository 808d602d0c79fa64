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
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

// reputationReward is the fixed score credited to a staff member for
// each completed work order.
const reputationReward = 10

type assignmentStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	GetOpenByIssue(ctx context.Context, issueID string) (*models.Assignment, error)
	StartTx(ctx context.Context, tx *sqlx.Tx, id string, startedAt time.Time) error
	CompleteTx(ctx context.Context, tx *sqlx.Tx, id string, completedAt time.Time, note, photoURL string) error
	ListByStaff(ctx context.Context, staffID string, openOnly bool) ([]models.AssignmentDetail, error)
}

type assignmentIssueStore interface {
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Issue, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.IssueStatus, resolvedAt *time.Time, updatedAt time.Time) error
	AddPhotoTx(ctx context.Context, tx *sqlx.Tx, photo *models.Photo) error
}

type assignmentUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	AddReputationTx(ctx context.Context, tx *sqlx.Tx, userID string, delta int, updatedAt time.Time) error
}

type emailNotifier interface {
	Notify(ctx context.Context, userID, subject, body string)
}

// AssignmentService runs the work-order lifecycle: create hands an
// issue to a staff member, start marks work underway, and complete
// resolves the issue. Each operation commits the assignment change,
// the issue transition, the history entry, and its notifications as
// one unit.
type AssignmentService struct {
	tx            txProvider
	assignments   assignmentStore
	issues        assignmentIssueStore
	users         assignmentUserStore
	history       historyStore
	notifications notificationWriter
	emails        emailNotifier
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(
	tx txProvider,
	assignments assignmentStore,
	issues assignmentIssueStore,
	users assignmentUserStore,
	history historyStore,
	notifications notificationWriter,
	emails emailNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{
		tx:            tx,
		assignments:   assignments,
		issues:        issues,
		users:         users,
		history:       history,
		notifications: notifications,
		emails:        emails,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create assigns an issue to a staff member and transitions it to
// ASSIGNED.
func (s *AssignmentService) Create(ctx context.Context, caller *models.JWTClaims, req dto.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if !caller.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may assign issues")
	}

	staff, err := s.users.FindByID(ctx, req.StaffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff member")
	}
	if staff.Role != models.RoleStaff {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee does not hold the staff role")
	}

	if open, openErr := s.assignments.GetOpenByIssue(ctx, req.IssueID); openErr == nil && open != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "issue already has an open assignment")
	} else if openErr != nil && !errors.Is(openErr, sql.ErrNoRows) {
		return nil, appErrors.Wrap(openErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open assignment")
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

	issue, err := s.issues.GetByIDTx(ctx, tx, req.IssueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "issue not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
		return nil, err
	}
	if issue.Status.Terminal() {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot assign a %s issue", issue.Status))
		return nil, err
	}

	assignment := &models.Assignment{
		IssueID:    req.IssueID,
		StaffID:    req.StaffID,
		AssignedBy: caller.UserID,
		AssignedAt: now,
	}
	if err = s.assignments.CreateTx(ctx, tx, assignment); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
		return nil, err
	}

	if err = s.transitionTx(ctx, tx, issue, models.StatusAssigned, caller.UserID, nil, now); err != nil {
		return nil, err
	}

	if err = s.notifications.CreateTx(ctx, tx, &models.Notification{
		UserID:  req.StaffID,
		Type:    models.NotificationAssignment,
		IssueID: &req.IssueID,
		Message: fmt.Sprintf("You have been assigned a %s issue (%s priority).", issue.Category, issue.Priority),
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create staff notification")
		return nil, err
	}

	if issue.ReporterID != nil && *issue.ReporterID != caller.UserID {
		if err = s.notifications.CreateTx(ctx, tx, &models.Notification{
			UserID:  *issue.ReporterID,
			Type:    models.NotificationAssignment,
			IssueID: &req.IssueID,
			Message: "Your report has been assigned to a maintenance staff member.",
		}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reporter notification")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit assignment")
		return nil, err
	}

	if s.emails != nil {
		s.emails.Notify(ctx, req.StaffID, "New assignment",
			fmt.Sprintf("You have been assigned issue %s (%s, %s priority).", req.IssueID, issue.Category, issue.Priority))
		if issue.ReporterID != nil {
			s.emails.Notify(ctx, *issue.ReporterID, "Your report was assigned",
				fmt.Sprintf("Issue %s has been assigned to maintenance staff.", req.IssueID))
		}
	}

	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("issue_id", req.IssueID),
		zap.String("staff_id", req.StaffID))

	return assignment, nil
}

// Start marks the caller's assignment as underway and moves the
// issue to IN_PROGRESS. Only the assigned staff member may start it.
func (s *AssignmentService) Start(ctx context.Context, caller *models.JWTClaims, assignmentID string) (*models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.StaffID != caller.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned staff member may start this assignment")
	}
	if assignment.StartedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "assignment already started")
	}
	if assignment.CompletedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "assignment already completed")
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

	if err = s.assignments.StartTx(ctx, tx, assignmentID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInvalidTransition, "assignment already started")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start assignment")
		return nil, err
	}

	issue, err := s.issues.GetByIDTx(ctx, tx, assignment.IssueID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
		return nil, err
	}

	if err = s.transitionTx(ctx, tx, issue, models.StatusInProgress, caller.UserID, nil, now); err != nil {
		return nil, err
	}

	if issue.ReporterID != nil && *issue.ReporterID != caller.UserID {
		if err = s.notifications.CreateTx(ctx, tx, &models.Notification{
			UserID:  *issue.ReporterID,
			Type:    models.NotificationStatusChange,
			IssueID: &assignment.IssueID,
			Message: "Work on your report is now in progress.",
		}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit start")
		return nil, err
	}

	assignment.StartedAt = &now
	return assignment, nil
}

// Complete closes the caller's assignment: the issue resolves, the
// completion photo becomes AFTER evidence, the ledger gains an entry,
// the reporter is notified, and the staff member earns the fixed
// reputation reward. All of it commits or none of it does.
func (s *AssignmentService) Complete(ctx context.Context, caller *models.JWTClaims, assignmentID string, req dto.CompleteAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.StaffID != caller.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned staff member may complete this assignment")
	}
	if assignment.CompletedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "assignment already completed")
	}
	if assignment.StartedAt == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "assignment must be started before completion")
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

	if err = s.assignments.CompleteTx(ctx, tx, assignmentID, now, req.CompletionNote, req.CompletionPhotoURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInvalidTransition, "assignment already completed")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete assignment")
		return nil, err
	}

	issue, err := s.issues.GetByIDTx(ctx, tx, assignment.IssueID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
		return nil, err
	}

	if err = s.issues.AddPhotoTx(ctx, tx, &models.Photo{
		IssueID:   assignment.IssueID,
		URL:       req.CompletionPhotoURL,
		Kind:      models.PhotoAfter,
		CreatedAt: now,
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach completion photo")
		return nil, err
	}

	note := req.CompletionNote
	if err = s.transitionTx(ctx, tx, issue, models.StatusResolved, caller.UserID, &note, now); err != nil {
		return nil, err
	}

	if err = s.users.AddReputationTx(ctx, tx, assignment.StaffID, reputationReward, now); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit reputation")
		return nil, err
	}

	if issue.ReporterID != nil && *issue.ReporterID != caller.UserID {
		if err = s.notifications.CreateTx(ctx, tx, &models.Notification{
			UserID:  *issue.ReporterID,
			Type:    models.NotificationStatusChange,
			IssueID: &assignment.IssueID,
			Message: "Your report has been resolved.",
		}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit completion")
		return nil, err
	}

	if s.emails != nil && issue.ReporterID != nil {
		s.emails.Notify(ctx, *issue.ReporterID, "Your report was resolved",
			fmt.Sprintf("Issue %s has been resolved. Note from staff: %s", assignment.IssueID, req.CompletionNote))
	}

	s.logger.Info("assignment completed",
		zap.String("assignment_id", assignmentID),
		zap.String("issue_id", assignment.IssueID),
		zap.String("staff_id", assignment.StaffID))

	assignment.CompletedAt = &now
	assignment.CompletionNote = &req.CompletionNote
	assignment.CompletionPhotoURL = &req.CompletionPhotoURL
	return assignment, nil
}

// ListMine returns the caller's work orders with issue context.
func (s *AssignmentService) ListMine(ctx context.Context, callerID string, openOnly bool) ([]models.AssignmentDetail, error) {
	details, err := s.assignments.ListByStaff(ctx, callerID, openOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return details, nil
}

// transitionTx moves the issue to the target status and appends the
// matching ledger entry. The guarded update surfaces racing
// transitions as InvalidTransition.
func (s *AssignmentService) transitionTx(ctx context.Context, tx *sqlx.Tx, issue *models.Issue, to models.IssueStatus, changedBy string, note *string, now time.Time) error {
	if issue.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("issue is already %s", issue.Status))
	}

	var resolvedAt *time.Time
	if to == models.StatusResolved {
		resolvedAt = &now
	}
	if err := s.issues.UpdateStatusTx(ctx, tx, issue.ID, issue.Status, to, resolvedAt, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "issue status changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue status")
	}

	from := issue.Status
	if err := s.history.AppendTx(ctx, tx, &models.StatusHistoryEntry{
		IssueID:    issue.ID,
		FromStatus: &from,
		ToStatus:   to,
		ChangedBy:  changedBy,
		Note:       note,
		CreatedAt:  now,
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status history")
	}
	return nil
}
