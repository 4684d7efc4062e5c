// Package access implements the grant store and the access evaluator.
//
// Expiry is enforced at authorization time: an expired, non-revoked grant no
// longer authorizes access. Listings still return expired grants, decorated
// with their computed expiry, so owners can see and revoke them.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	"github.com/medledger/medledger-api/internal/service/event"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

type AccessService interface {
	Grant(ctx context.Context, req *model.CreateGrantRequest) (*model.AccessGrant, error)
	Revoke(ctx context.Context, id int64) (bool, error)
	ListByPatient(ctx context.Context, address string) ([]*model.GrantView, error)
	ListByDoctor(ctx context.Context, address string) ([]*model.GrantView, error)
	AccessibleRecordsForDoctor(ctx context.Context, doctorAddress string) (*model.DoctorAccessView, error)
	HasAccess(ctx context.Context, doctorAddress, patientAddress string, recordID int64) (bool, error)
}

type Service struct {
	grants  repository.GrantRepository
	records repository.RecordRepository
	users   repository.UserRepository
	events  *event.Service
	now     func() time.Time
}

func NewService(grants repository.GrantRepository, records repository.RecordRepository,
	users repository.UserRepository, events *event.Service) *Service {
	return &Service{
		grants:  grants,
		records: records,
		users:   users,
		events:  events,
		now:     time.Now,
	}
}

// Grant creates an access grant after checking that the doctor address is a
// registered doctor and that every record id is owned by the patient. The
// ownership check happens at grant time only; it is not re-validated
// continuously.
func (s *Service) Grant(ctx context.Context, req *model.CreateGrantRequest) (*model.AccessGrant, error) {
	doctor, err := s.users.GetByAddress(ctx, req.DoctorAddress)
	if err != nil {
		return nil, apperrors.InvalidInput("doctor address is not registered", err)
	}
	if doctor.Role != model.RoleDoctor {
		return nil, apperrors.InvalidInput("address is not registered as a doctor", nil)
	}

	owned, err := s.records.ListByPatient(ctx, req.PatientAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient records: %w", err)
	}
	ownedIDs := make(map[int64]bool, len(owned))
	for _, rec := range owned {
		ownedIDs[rec.ID] = true
	}

	seen := make(map[int64]bool, len(req.RecordIDs))
	ids := make([]int64, 0, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		if !ownedIDs[id] {
			return nil, apperrors.InvalidInput(
				fmt.Sprintf("record %d is not owned by patient %s", id, req.PatientAddress), nil)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	grant := &model.AccessGrant{
		PatientAddress: req.PatientAddress,
		DoctorAddress:  doctor.Address,
		RecordIDs:      ids,
		Duration:       req.AccessDuration,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.grants.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	s.events.Publish(ctx, event.TypeAccessGranted, grant)
	return grant, nil
}

// Revoke removes a grant unconditionally by id.
func (s *Service) Revoke(ctx context.Context, id int64) (bool, error) {
	grant, err := s.grants.Get(ctx, id)
	if err != nil {
		return false, nil
	}

	revoked, err := s.grants.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke grant: %w", err)
	}
	if revoked {
		s.events.Publish(ctx, event.TypeAccessRevoked, grant)
	}
	return revoked, nil
}

// Get returns a grant by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.AccessGrant, error) {
	return s.grants.Get(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, address string) ([]*model.GrantView, error) {
	grants, err := s.grants.ListByPatient(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return s.decorate(grants), nil
}

func (s *Service) ListByDoctor(ctx context.Context, address string) ([]*model.GrantView, error) {
	grants, err := s.grants.ListByDoctor(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return s.decorate(grants), nil
}

// AccessibleRecordsForDoctor returns the doctor's active grants plus the
// union of records across the distinct patient addresses those grants
// reference. The record set is not intersected with per-grant record ids at
// this layer; callers do that when rendering or authorizing one record.
func (s *Service) AccessibleRecordsForDoctor(ctx context.Context, doctorAddress string) (*model.DoctorAccessView, error) {
	grants, err := s.grants.ListByDoctor(ctx, doctorAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	now := s.now()
	view := &model.DoctorAccessView{
		Grants:  []*model.GrantView{},
		Records: []*model.MedicalRecord{},
	}

	seenPatients := make(map[string]bool)
	for _, g := range grants {
		if !g.Active(now) {
			continue
		}
		view.Grants = append(view.Grants, model.NewGrantView(g, now))

		key := strings.ToLower(g.PatientAddress)
		if seenPatients[key] {
			continue
		}
		seenPatients[key] = true

		records, err := s.records.ListByPatient(ctx, g.PatientAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to list records for %s: %w", g.PatientAddress, err)
		}
		view.Records = append(view.Records, records...)
	}

	return view, nil
}

// HasAccess reports whether some active grant for the (doctor, patient)
// pair contains the record id.
func (s *Service) HasAccess(ctx context.Context, doctorAddress, patientAddress string, recordID int64) (bool, error) {
	grants, err := s.grants.ListByDoctor(ctx, doctorAddress)
	if err != nil {
		return false, fmt.Errorf("failed to list grants: %w", err)
	}

	now := s.now()
	for _, g := range grants {
		if !strings.EqualFold(g.PatientAddress, patientAddress) {
			continue
		}
		if !g.Active(now) {
			continue
		}
		if g.ContainsRecord(recordID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) decorate(grants []*model.AccessGrant) []*model.GrantView {
	now := s.now()
	views := make([]*model.GrantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, model.NewGrantView(g, now))
	}
	return views
}
