package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/models"
	"github.com/campuscare/campuscare-api/pkg/mailer"
)

type emailQueue interface {
	Enqueue(msg mailer.Message) error
}

type emailUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type emailMetrics interface {
	RecordEmailFailure()
}

// EmailNotifier resolves a user to an address and hands the message
// to the outbound queue. Everything here is best-effort: a failed
// lookup or a full queue is logged and dropped, never surfaced to
// the workflow that triggered it.
type EmailNotifier struct {
	users   emailUserStore
	queue   emailQueue
	metrics emailMetrics
	logger  *zap.Logger
}

// NewEmailNotifier constructs the notifier. A nil queue disables it.
func NewEmailNotifier(users emailUserStore, queue emailQueue, metrics emailMetrics, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailNotifier{users: users, queue: queue, metrics: metrics, logger: logger}
}

// Notify enqueues one email to the given user.
func (n *EmailNotifier) Notify(ctx context.Context, userID, subject, body string) {
	if n == nil || n.queue == nil || userID == "" {
		return
	}
	user, err := n.users.FindByID(ctx, userID)
	if err != nil {
		n.logger.Warn("email recipient lookup failed", zap.String("user_id", userID), zap.Error(err))
		if n.metrics != nil {
			n.metrics.RecordEmailFailure()
		}
		return
	}
	if err := n.queue.Enqueue(mailer.Message{To: user.Email, Subject: subject, Body: body}); err != nil {
		n.logger.Warn("email enqueue failed", zap.String("user_id", userID), zap.Error(err))
		if n.metrics != nil {
			n.metrics.RecordEmailFailure()
		}
	}
}
