package jsonstore

import (
	"context"
	"strings"
	"time"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

type userRepository struct {
	s *Store
}

func NewUserRepository(s *Store) repository.UserRepository {
	return &userRepository{s: s}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Address, user.Address) {
			return apperrors.Conflict("address already registered", nil)
		}
	}

	user.ID = s.nextUserID
	s.nextUserID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// The store keeps its own copy so callers never hold interior pointers.
	s.users = append(s.users, cloneUser(user))
	s.save()
	return nil
}

func (r *userRepository) GetByAddress(ctx context.Context, address string) (*model.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Address, address) {
			return cloneUser(u), nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*model.User, len(s.users))
	for i, u := range s.users {
		users[i] = cloneUser(u)
	}
	return users, nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	return &c
}
