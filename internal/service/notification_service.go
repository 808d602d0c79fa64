package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/dto"
	"github.com/campuscare/campuscare-api/internal/models"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

type notificationStore interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// NotificationService serves the polled inbox.
type NotificationService struct {
	store  notificationStore
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(store notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns the caller's notifications with an unread count.
func (s *NotificationService) List(ctx context.Context, callerID string, query dto.NotificationQuery) ([]models.Notification, int, *models.Pagination, error) {
	filter := models.NotificationFilter{
		UserID:     callerID,
		UnreadOnly: query.Unread,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	notifications, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.store.CountUnread(ctx, callerID)
	if err != nil {
		return nil, 0, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return notifications, unread, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead stamps one notification as read. Marking a notification
// that is already read is a no-op, not an error.
func (s *NotificationService) MarkRead(ctx context.Context, callerID, notificationID string) error {
	updated, err := s.store.MarkRead(ctx, notificationID, callerID, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		s.logger.Debug("notification already read or not owned",
			zap.String("notification_id", notificationID),
			zap.String("user_id", callerID))
	}
	return nil
}

// MarkAllRead stamps every unread notification for the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, callerID string) (int, error) {
	count, err := s.store.MarkAllRead(ctx, callerID, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return count, nil
}
