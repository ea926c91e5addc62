package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kudos-web/internal/domain"
	"kudos-web/internal/password"
	"kudos-web/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyExists is returned when attempting to register with an existing email.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned by lookups that match no user.
	ErrUserNotFound = errors.New("user not found")
)

// UserService describes user lifecycle operations.
type UserService interface {
	Create(ctx context.Context, email, rawPassword, displayName string) (*domain.User, error)
	Authenticate(ctx context.Context, email, rawPassword string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	EmailRegistered(ctx context.Context, email string) (bool, error)
}

type userService struct {
	users  repository.UserRepository
	hasher password.Hasher
}

func NewUserService(users repository.UserRepository, hasher password.Hasher) UserService {
	return &userService{
		users:  users,
		hasher: hasher,
	}
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes rawPassword and stores a new user. The storage unique index
// decides ErrAlreadyExists; callers may pre-check with EmailRegistered.
func (s *userService) Create(ctx context.Context, email, rawPassword, displayName string) (*domain.User, error) {
	hash, err := s.hasher.Hash(ctx, rawPassword)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	return sanitizeUser(user), nil
}

// Authenticate returns ErrInvalidCredentials both for unknown emails and
// wrong passwords; both paths pay for one bcrypt comparison.
func (s *userService) Authenticate(ctx context.Context, email, rawPassword string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	var hash string
	if user != nil {
		hash = user.PasswordHash
	}
	if err := s.hasher.Compare(ctx, hash, rawPassword); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) EmailRegistered(ctx context.Context, email string) (bool, error) {
	exists, err := s.users.ExistsByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}
