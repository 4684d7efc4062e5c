package jsonstore

import (
	"context"
	"strings"
	"time"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

type grantRepository struct {
	s *Store
}

func NewGrantRepository(s *Store) repository.GrantRepository {
	return &grantRepository{s: s}
}

func (r *grantRepository) Create(ctx context.Context, grant *model.AccessGrant) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	grant.ID = s.nextGrantID
	s.nextGrantID++
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}

	s.grants = append(s.grants, cloneGrant(grant))
	s.save()
	return nil
}

func (r *grantRepository) Get(ctx context.Context, id int64) (*model.AccessGrant, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.grants {
		if g.ID == id {
			return cloneGrant(g), nil
		}
	}
	return nil, apperrors.NotFound("grant", nil)
}

func (r *grantRepository) Delete(ctx context.Context, id int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.grants {
		if g.ID == id {
			s.grants = append(s.grants[:i], s.grants[i+1:]...)
			s.save()
			return true, nil
		}
	}
	return false, nil
}

func (r *grantRepository) ListByPatient(ctx context.Context, address string) ([]*model.AccessGrant, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []*model.AccessGrant
	for _, g := range s.grants {
		if strings.EqualFold(g.PatientAddress, address) {
			grants = append(grants, cloneGrant(g))
		}
	}
	return grants, nil
}

func (r *grantRepository) ListByDoctor(ctx context.Context, address string) ([]*model.AccessGrant, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []*model.AccessGrant
	for _, g := range s.grants {
		if strings.EqualFold(g.DoctorAddress, address) {
			grants = append(grants, cloneGrant(g))
		}
	}
	return grants, nil
}

// cloneGrant deep-copies the grant; RecordIDs is rewritten in place by the
// record delete cascade, so the slice must not be shared with callers.
func cloneGrant(g *model.AccessGrant) *model.AccessGrant {
	c := *g
	c.RecordIDs = append([]int64(nil), g.RecordIDs...)
	return &c
}
