// Package user implements the address registry: wallet addresses map to a
// role exactly once, case-insensitively.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	"github.com/medledger/medledger-api/internal/service/event"
)

const (
	lookupCacheTTL     = 5 * time.Minute
	lookupCacheCleanup = 10 * time.Minute
)

type UserService interface {
	Register(ctx context.Context, address, role string) (*model.User, error)
	Exists(ctx context.Context, address string) (string, bool, error)
}

type Service struct {
	repo   repository.UserRepository
	events *event.Service
	// lookups caches positive address->role resolutions; registration is
	// the only mutation, so entries never go stale within the TTL.
	lookups *cache.Cache
}

func NewService(repo repository.UserRepository, events *event.Service) *Service {
	return &Service{
		repo:    repo,
		events:  events,
		lookups: cache.New(lookupCacheTTL, lookupCacheCleanup),
	}
}

func (s *Service) Register(ctx context.Context, address, role string) (*model.User, error) {
	user := &model.User{
		Address:   address,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.lookups.Set(cacheKey(address), user.Role, cache.DefaultExpiration)
	s.events.Publish(ctx, event.TypeUserRegistered, user)
	return user, nil
}

// Exists resolves an address to its role, case-insensitively.
func (s *Service) Exists(ctx context.Context, address string) (string, bool, error) {
	if role, ok := s.lookups.Get(cacheKey(address)); ok {
		return role.(string), true, nil
	}

	user, err := s.repo.GetByAddress(ctx, address)
	if err != nil {
		return "", false, nil
	}

	s.lookups.Set(cacheKey(address), user.Role, cache.DefaultExpiration)
	return user.Role, true, nil
}

// Get returns the registered user for an address.
func (s *Service) Get(ctx context.Context, address string) (*model.User, error) {
	user, err := s.repo.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func cacheKey(address string) string {
	return strings.ToLower(address)
}
