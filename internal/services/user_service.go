package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

type UserService struct {
	users UserStore
	log   *zap.Logger
	now   func() time.Time
}

func NewUserService(users UserStore, log *zap.Logger, opts ...Option) *UserService {
	o := applyOptions(opts)
	return &UserService{users: users, log: log, now: o.now}
}

func (s *UserService) Register(ctx context.Context, email, password, displayName, role string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", models.ErrInvalidArgument)
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("role must be landlord or tenant: %w", models.ErrInvalidArgument)
	}
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", role))
	return u, nil
}

// Login verifies the credentials. Unknown email and wrong password both
// report models.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.UpdateLastActive(ctx, u.ID, now); err != nil {
		s.log.Warn("failed to update last active", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	u.LastActiveAt = now
	return u, nil
}

func (s *UserService) Get(ctx context.Context, caller uuid.UUID) (*models.User, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, caller)
}

// ProfileUpdate carries the caller-editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	Phone       *string
}

// UpdateProfile edits the caller's own contact details. Role is fixed at
// registration.
func (s *UserService) UpdateProfile(ctx context.Context, caller uuid.UUID, changes ProfileUpdate) (*models.User, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, caller)
	if err != nil {
		return nil, err
	}

	if changes.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*changes.DisplayName)
	}
	if changes.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*changes.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("invalid email: %w", models.ErrInvalidArgument)
		}
		u.Email = email
	}
	if changes.Phone != nil {
		u.Phone = strings.TrimSpace(*changes.Phone)
	}

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user profile updated", zap.String("user_id", u.ID.String()))
	return u, nil
}

// GetPublic returns the profile of any registered user without contact
// details.
func (s *UserService) GetPublic(ctx context.Context, id uuid.UUID) (*models.PublicUser, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	pub := u.Public()
	return &pub, nil
}
