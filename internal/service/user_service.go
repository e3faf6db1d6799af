package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"go.uber.org/zap"
)

// UserService is the user directory used to resolve participants.
type UserService struct {
	users  repository.UserStore
	logger *zap.Logger
}

func NewUserService(users repository.UserStore, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
	}
}

type TelegramProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// RegisterTelegramUser creates the user on first contact and refreshes the
// profile afterwards.
func (s *UserService) RegisterTelegramUser(ctx context.Context, p TelegramProfile) (*model.User, error) {
	existing, err := s.users.GetByTelegramID(ctx, p.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	if existing != nil {
		existing.Username = p.Username
		existing.FirstName = p.FirstName
		existing.LastName = p.LastName

		if err := s.users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}

		s.logger.Debug("User updated",
			zap.Int64("telegram_id", p.TelegramID),
			zap.String("username", p.Username),
		)
		return existing, nil
	}

	telegramID := p.TelegramID
	user := &model.User{
		TelegramID: &telegramID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
	}

	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrConflict) {
		// Lost a race with a concurrent registration of the same account.
		return s.GetByTelegramID(ctx, p.TelegramID)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", p.TelegramID),
		zap.String("username", p.Username),
	)
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.found(s.users.GetByID(ctx, id))
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.found(s.users.GetByEmail(ctx, email))
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.found(s.users.GetByTelegramID(ctx, telegramID))
}

func (s *UserService) ListTutors(ctx context.Context) ([]*model.User, error) {
	tutors, err := s.users.ListTutors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}
	return tutors, nil
}

func (s *UserService) found(u *model.User, err error) (*model.User, error) {
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
