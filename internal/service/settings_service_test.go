package service_test

import (
	"testing"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSettingsService_GetDefaultsAndUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewSettingsService(repository.NewTechnicianSettingsRepository(db), zap.NewNop())

	tech := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleOPL})
	ctx := userContext(tech)

	settings, err := svc.Get(ctx, tech.ID, domain.ModuleOPL)
	require.NoError(t, err)
	assert.Zero(t, settings.WorkingDaysGoal)
	assert.Zero(t, settings.RevenueGoal)

	updated, err := svc.Update(ctx, tech.ID, domain.ModuleOPL, &domain.UpdateTechnicianSettingsRequest{
		WorkingDaysGoal: 20,
		RevenueGoal:     12000,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.WorkingDaysGoal)
	assert.Equal(t, 12000.0, updated.RevenueGoal)

	updated, err = svc.Update(ctx, tech.ID, domain.ModuleOPL, &domain.UpdateTechnicianSettingsRequest{WorkingDaysGoal: 18})
	require.NoError(t, err)
	assert.Equal(t, 18, updated.WorkingDaysGoal)

	// goals are kept per module
	other, err := svc.Get(ctx, tech.ID, domain.ModuleVectra)
	require.NoError(t, err)
	assert.Zero(t, other.WorkingDaysGoal)
}

func TestSettingsService_Access(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewSettingsService(repository.NewTechnicianSettingsRepository(db), zap.NewNop())

	tech := testutil.CreateUser(t, db, domain.RoleTechnician, nil)
	peer := testutil.CreateUser(t, db, domain.RoleTechnician, nil)
	coordinator := testutil.CreateUser(t, db, domain.RoleCoordinator, nil)
	admin := testutil.CreateUser(t, db, domain.RoleAdmin, nil)
	req := &domain.UpdateTechnicianSettingsRequest{WorkingDaysGoal: 10}

	_, err := svc.Get(userContext(peer), tech.ID, domain.ModuleVectra)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.Get(userContext(coordinator), tech.ID, domain.ModuleVectra)
	assert.NoError(t, err)

	_, err = svc.Update(userContext(coordinator), tech.ID, domain.ModuleVectra, req)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.Update(userContext(admin), tech.ID, domain.ModuleVectra, req)
	assert.NoError(t, err)
}
