package user

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository/jsonstore"
	"github.com/medledger/medledger-api/internal/service/event"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := jsonstore.Open(filepath.Join(t.TempDir(), "data.json"), zerolog.Nop(), nil)
	require.NoError(t, err)
	events := event.NewService(nil, zerolog.Nop(), nil)
	return NewService(jsonstore.NewUserRepository(store), events)
}

func TestRegisterConflictIgnoresCase(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	u, err := svc.Register(ctx, "0xAbCd", model.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = svc.Register(ctx, "0xABCD", model.RolePatient)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	_, err = svc.Register(ctx, "0xabcd", model.RoleDoctor)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, exists, err := svc.Exists(ctx, "0xNobody")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Register(ctx, "0xDoc", model.RoleDoctor)
	require.NoError(t, err)

	role, exists, err := svc.Exists(ctx, "0xdoc")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, model.RoleDoctor, role)

	// Second lookup is served from the cache.
	role, exists, err = svc.Exists(ctx, "0xDOC")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, model.RoleDoctor, role)
}
