// Package auth establishes sessions for self-asserted wallet addresses.
// There is no password: login succeeds when the address is registered and
// the asserted role matches the registered one.
package auth

import (
	"context"
	"strings"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	"github.com/medledger/medledger-api/pkg/auth"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

type Service struct {
	users  repository.UserRepository
	jwtSvc auth.JWTService
}

func NewService(users repository.UserRepository, jwtSvc auth.JWTService) *Service {
	return &Service{
		users:  users,
		jwtSvc: jwtSvc,
	}
}

// Login issues a session token for a registered address. The returned
// identity carries the address casing recorded at registration.
func (s *Service) Login(ctx context.Context, address, role string) (*model.TokenResponse, error) {
	user, err := s.users.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if !strings.EqualFold(user.Role, role) {
		return nil, apperrors.Unauthorized(nil)
	}

	token, err := s.jwtSvc.GenerateToken(user.Address, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.TokenResponse{
		Token:   token,
		Address: user.Address,
		Role:    user.Role,
	}, nil
}

// ValidateToken resolves a session token back to its claims.
func (s *Service) ValidateToken(ctx context.Context, token string) (*auth.SessionClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}
