package services

import (
	"context"

	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Disable(ctx context.Context, id string) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// GetByID returns the account regardless of its disabled flag. Callers
// serving public lookups should use Lookup instead.
func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Lookup returns the account only while it is active; disabled accounts
// are indistinguishable from absent ones.
func (s *UserService) Lookup(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if user.Disabled {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

// Disable soft-deletes the account and returns the updated record.
func (s *UserService) Disable(ctx context.Context, id string) (types.User, error) {
	if err := s.repo.Disable(ctx, id); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, id)
}
