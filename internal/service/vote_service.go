package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/models"
	"github.com/campuscare/campuscare-api/internal/urgency"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

// voteEscalationThreshold is the vote count that triggers the one
// shot escalation from level 0 to 1.
const voteEscalationThreshold = 5

type voteStore interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, issueID, userID string) (bool, error)
	DeleteTx(ctx context.Context, tx *sqlx.Tx, issueID, userID string) (bool, error)
	CountTx(ctx context.Context, tx *sqlx.Tx, issueID string) (int, error)
	Exists(ctx context.Context, issueID, userID string) (bool, error)
}

type voteIssueStore interface {
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Issue, error)
	UpdateScoreTx(ctx context.Context, tx *sqlx.Tx, id string, score, escalationLevel int, updatedAt time.Time) error
}

type voteMetrics interface {
	RecordEscalation()
}

// VoteService toggles per-user votes and fires the automatic
// escalation once the vote threshold is crossed.
type VoteService struct {
	tx            txProvider
	votes         voteStore
	issues        voteIssueStore
	notifications notificationWriter
	metrics       voteMetrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewVoteService constructs a VoteService.
func NewVoteService(tx txProvider, votes voteStore, issues voteIssueStore, notifications notificationWriter, metrics voteMetrics, logger *zap.Logger) *VoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoteService{
		tx:            tx,
		votes:         votes,
		issues:        issues,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Toggle flips the caller's vote on an issue. The persisted vote
// count comes from the authoritative post-toggle COUNT rather than a
// client-side increment, so interleaved toggles by different users
// cannot lose updates. When the count reaches the threshold and the
// escalation level is still 0, the level bumps to 1 exactly once and
// an escalation notification goes to the reporter.
func (s *VoteService) Toggle(ctx context.Context, caller *models.JWTClaims, issueID string) (*models.VoteResult, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	issue, err := s.issues.GetByIDTx(ctx, tx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "issue not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
		return nil, err
	}
	if issue.Status.Terminal() {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot vote on a %s issue", issue.Status))
		return nil, err
	}

	result := &models.VoteResult{Action: models.VoteActionVoted}
	inserted, err := s.votes.InsertTx(ctx, tx, issueID, caller.UserID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert vote")
		return nil, err
	}
	if !inserted {
		removed, delErr := s.votes.DeleteTx(ctx, tx, issueID, caller.UserID)
		if delErr != nil {
			err = appErrors.Wrap(delErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove vote")
			return nil, err
		}
		if !removed {
			// Raced with a concurrent unvote; treat this call as a vote
			// that then disappeared. Count below stays authoritative.
			s.logger.Debug("vote toggle raced", zap.String("issue_id", issueID), zap.String("user_id", caller.UserID))
		}
		result.Action = models.VoteActionUnvoted
	}

	voteCount, err := s.votes.CountTx(ctx, tx, issueID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count votes")
		return nil, err
	}
	result.VoteCount = voteCount

	now := s.now()
	escalationLevel := issue.EscalationLevel
	if voteCount >= voteEscalationThreshold && escalationLevel == 0 {
		escalationLevel = 1
		result.Escalated = true
	}

	score := urgency.Score(issue.Category, issue.Priority, voteCount, escalationLevel, urgency.AgeHours(issue.CreatedAt, now))
	result.UrgencyScore = score

	if err = s.issues.UpdateScoreTx(ctx, tx, issueID, score, escalationLevel, now); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist urgency score")
		return nil, err
	}

	if result.Escalated && issue.ReporterID != nil {
		if err = s.notifications.CreateTx(ctx, tx, &models.Notification{
			UserID:  *issue.ReporterID,
			Type:    models.NotificationEscalation,
			IssueID: &issueID,
			Message: fmt.Sprintf("Your report reached %d votes and has been escalated.", voteCount),
		}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create escalation notification")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit vote toggle")
		return nil, err
	}

	if result.Escalated {
		if s.metrics != nil {
			s.metrics.RecordEscalation()
		}
		s.logger.Info("issue escalated",
			zap.String("issue_id", issueID),
			zap.Int("vote_count", voteCount),
			zap.Int("urgency_score", score))
	}

	return result, nil
}
