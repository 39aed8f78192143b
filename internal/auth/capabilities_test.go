package auth_test

import (
	"context"
	"testing"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCapabilities(t *testing.T) {
	locA := uuid.New()
	locB := uuid.New()

	t.Run("admin uses requested location", func(t *testing.T) {
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleAdmin}
		caps, err := auth.ResolveCapabilities(user, &locB)
		require.NoError(t, err)
		assert.True(t, caps.IsAdmin)
		assert.False(t, caps.IsTechnician)
		require.NotNil(t, caps.ActiveLocationID)
		assert.Equal(t, locB, *caps.ActiveLocationID)

		loc, err := caps.RequireLocation()
		require.NoError(t, err)
		assert.Equal(t, locB, loc)
	})

	t.Run("coordinator without location can read but not write", func(t *testing.T) {
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleCoordinator}
		caps, err := auth.ResolveCapabilities(user, nil)
		require.NoError(t, err)
		assert.True(t, caps.IsCoordinator)
		assert.Nil(t, caps.ActiveLocationID)

		_, err = caps.RequireLocation()
		assert.ErrorIs(t, err, auth.ErrLocationRequired)
	})

	t.Run("warehouseman defaults to first assigned location", func(t *testing.T) {
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleWarehouseman, LocationIDs: []uuid.UUID{locA, locB}}
		caps, err := auth.ResolveCapabilities(user, nil)
		require.NoError(t, err)
		assert.True(t, caps.IsWarehouseman)
		assert.Equal(t, locA, *caps.ActiveLocationID)
	})

	t.Run("warehouseman may pick an assigned location", func(t *testing.T) {
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleWarehouseman, LocationIDs: []uuid.UUID{locA, locB}}
		caps, err := auth.ResolveCapabilities(user, &locB)
		require.NoError(t, err)
		assert.Equal(t, locB, *caps.ActiveLocationID)
	})

	t.Run("warehouseman cannot pick a foreign location", func(t *testing.T) {
		other := uuid.New()
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleWarehouseman, LocationIDs: []uuid.UUID{locA}}
		_, err := auth.ResolveCapabilities(user, &other)
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("warehouseman without locations is forbidden", func(t *testing.T) {
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleWarehouseman}
		_, err := auth.ResolveCapabilities(user, nil)
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("technician has no location", func(t *testing.T) {
		user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleTechnician, Modules: []domain.ModuleCode{domain.ModuleOPL}}
		caps, err := auth.ResolveCapabilities(user, &locA)
		require.NoError(t, err)
		assert.True(t, caps.IsTechnician)
		assert.Nil(t, caps.ActiveLocationID)
		assert.Equal(t, []domain.ModuleCode{domain.ModuleOPL}, caps.ToDTO().Modules)

		_, err = caps.RequireLocation()
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := auth.ResolveCapabilities(&auth.UserContext{Role: "GUEST"}, nil)
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})
}

func TestCapabilitiesContext(t *testing.T) {
	caps := &auth.Capabilities{Role: domain.RoleAdmin, IsAdmin: true}
	ctx := auth.WithCapabilities(context.Background(), caps)

	got, ok := auth.CapabilitiesFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, caps, got)

	_, ok = auth.CapabilitiesFromContext(context.Background())
	assert.False(t, ok)
}

func TestUserContext_HasModule(t *testing.T) {
	tech := &auth.UserContext{Role: domain.RoleTechnician, Modules: []domain.ModuleCode{domain.ModuleVectra}}
	assert.True(t, tech.HasModule(domain.ModuleVectra))
	assert.False(t, tech.HasModule(domain.ModuleOPL))

	admin := &auth.UserContext{Role: domain.RoleAdmin}
	assert.True(t, admin.HasModule(domain.ModuleOPL))
}
