package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/models"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
}

// UserService serves profile reads and the staff directory used by
// assignment pickers.
type UserService struct {
	store  userStore
	logger *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(store userStore, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{store: store, logger: logger}
}

// Me returns the caller's profile.
func (s *UserService) Me(ctx context.Context, callerID string) (*models.UserInfo, error) {
	user, err := s.store.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &models.UserInfo{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Role:       user.Role,
		Reputation: user.Reputation,
	}, nil
}

// ListStaff returns active staff members for the assignment picker.
func (s *UserService) ListStaff(ctx context.Context) ([]models.UserInfo, error) {
	users, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list staff")
	}
	infos := make([]models.UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, models.UserInfo{
			ID:         user.ID,
			Email:      user.Email,
			FullName:   user.FullName,
			Role:       user.Role,
			Reputation: user.Reputation,
		})
	}
	return infos, nil
}
