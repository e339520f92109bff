package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/jwtauth"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/RabbitBoii/habit-tracker/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrMissingExternalID  = errors.New("identity has no subject")
	ErrFailedToCreateUser = errors.New("failed to create user")
)

// UserService bridges identity-provider subjects to local users.
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

// GetOrCreateCurrentUser returns the local user for the identity, creating it
// with the starting credit balance on first sight.
func (s *UserService) GetOrCreateCurrentUser(ctx context.Context, identity jwtauth.Identity) (*models.User, error) {
	if strings.TrimSpace(identity.ExternalID) == "" {
		return nil, ErrMissingExternalID
	}

	user, err := s.userRepo.FindByExternalID(ctx, identity.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	email := strings.TrimSpace(identity.Email)
	if email == "" {
		email = constants.FallbackUserEmail
	}

	user = &models.User{
		ExternalID: identity.ExternalID,
		Email:      email,
		Name:       strings.TrimSpace(identity.FirstName + " " + identity.LastName),
		Credits:    constants.DefaultUserCredits,
	}
	if err := s.userRepo.CreateIfAbsent(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateUser, err)
	}

	return user, nil
}

// FindByExternalID returns the local user for an identity-provider subject.
func (s *UserService) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// GetByID returns a local user by ID.
func (s *UserService) GetByID(ctx context.Context, userID uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
