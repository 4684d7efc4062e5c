package access

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository/jsonstore"
	"github.com/medledger/medledger-api/internal/service/event"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

type fixture struct {
	svc     *Service
	users   func(addr, role string) *model.User
	records func(patient, title string) *model.MedicalRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := jsonstore.Open(filepath.Join(t.TempDir(), "data.json"), zerolog.Nop(), nil)
	require.NoError(t, err)

	userRepo := jsonstore.NewUserRepository(store)
	recordRepo := jsonstore.NewRecordRepository(store)
	grantRepo := jsonstore.NewGrantRepository(store)
	events := event.NewService(nil, zerolog.Nop(), nil)

	return &fixture{
		svc: NewService(grantRepo, recordRepo, userRepo, events),
		users: func(addr, role string) *model.User {
			u := &model.User{Address: addr, Role: role}
			require.NoError(t, userRepo.Create(ctx, u))
			return u
		},
		records: func(patient, title string) *model.MedicalRecord {
			r := &model.MedicalRecord{Title: title, PatientAddress: patient, RecordType: model.RecordTypeLabResult}
			require.NoError(t, recordRepo.Create(ctx, r))
			return r
		},
	}
}

func TestGrantRejectsUnownedRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users("0xP", model.RolePatient)
	f.users("0xD", model.RoleDoctor)
	mine := f.records("0xP", "mine")
	other := f.records("0xOther", "not mine")

	_, err := f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xD",
		RecordIDs:      []int64{mine.ID, other.ID},
		AccessDuration: model.DurationSevenDays,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}

func TestGrantRejectsNonDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users("0xP", model.RolePatient)
	f.users("0xNotADoc", model.RolePatient)
	rec := f.records("0xP", "mine")

	_, err := f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xNotADoc",
		RecordIDs:      []int64{rec.ID},
		AccessDuration: model.DurationOneDay,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))

	_, err = f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xUnknown",
		RecordIDs:      []int64{rec.ID},
		AccessDuration: model.DurationOneDay,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}

func TestHasAccessGrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users("0xP", model.RolePatient)
	f.users("0xD", model.RoleDoctor)
	rec := f.records("0xP", "lab")

	ok, err := f.svc.HasAccess(ctx, "0xD", "0xP", rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	grant, err := f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xD",
		RecordIDs:      []int64{rec.ID},
		AccessDuration: model.DurationSevenDays,
	})
	require.NoError(t, err)

	// Case differences must not matter anywhere.
	ok, err = f.svc.HasAccess(ctx, "0xd", "0xp", rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := f.svc.Revoke(ctx, grant.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	ok, err = f.svc.HasAccess(ctx, "0xD", "0xP", rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	revoked, err = f.svc.Revoke(ctx, grant.ID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestHasAccessEnforcesExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users("0xP", model.RolePatient)
	f.users("0xD", model.RoleDoctor)
	rec := f.records("0xP", "old lab")

	// Create the grant two days in the past.
	past := time.Now().Add(-48 * time.Hour)
	f.svc.now = func() time.Time { return past }
	expired, err := f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xD",
		RecordIDs:      []int64{rec.ID},
		AccessDuration: model.DurationOneDay,
	})
	require.NoError(t, err)

	permanent, err := f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xD",
		RecordIDs:      []int64{rec.ID},
		AccessDuration: model.DurationPermanent,
	})
	require.NoError(t, err)
	f.svc.now = time.Now

	ok, err := f.svc.HasAccess(ctx, "0xD", "0xP", rec.ID)
	require.NoError(t, err)
	assert.True(t, ok, "permanent grant still authorizes")

	revoked, err := f.svc.Revoke(ctx, permanent.ID)
	require.NoError(t, err)
	require.True(t, revoked)

	ok, err = f.svc.HasAccess(ctx, "0xD", "0xP", rec.ID)
	require.NoError(t, err)
	assert.False(t, ok, "expired grant must not authorize")

	// Expired grants still show up in listings, marked inactive.
	views, err := f.svc.ListByDoctor(ctx, "0xD")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, expired.ID, views[0].ID)
	assert.False(t, views[0].Active)
	require.NotNil(t, views[0].ExpiresAt)
}

func TestAccessibleRecordsForDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users("0xP", model.RolePatient)
	f.users("0xD", model.RoleDoctor)
	lab := f.records("0xP", "Lab A")
	f.records("0xP", "Unshared")

	_, err := f.svc.Grant(ctx, &model.CreateGrantRequest{
		PatientAddress: "0xP",
		DoctorAddress:  "0xD",
		RecordIDs:      []int64{lab.ID},
		AccessDuration: model.DurationSevenDays,
	})
	require.NoError(t, err)

	view, err := f.svc.AccessibleRecordsForDoctor(ctx, "0xD")
	require.NoError(t, err)
	require.Len(t, view.Grants, 1)
	// Union semantics: all records of the referenced patient come back;
	// callers intersect with the grant's record ids.
	assert.Len(t, view.Records, 2)

	other, err := f.svc.AccessibleRecordsForDoctor(ctx, "0xSomeoneElse")
	require.NoError(t, err)
	assert.Empty(t, other.Grants)
	assert.Empty(t, other.Records)
}
