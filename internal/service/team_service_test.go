package service_test

import (
	"context"
	"testing"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func createTeamService(db *gorm.DB) *service.TeamService {
	return service.NewTeamService(
		repository.NewTeamRepository(db),
		repository.NewUserRepository(db),
		repository.NewModuleAccessRepository(db),
		zap.NewNop(),
	)
}

func TestSuggestPartner(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	teams := []domain.Team{
		{TechnicianAID: a, TechnicianBID: c, Active: false},
		{TechnicianAID: b, TechnicianBID: a, Active: true},
	}

	assert.Equal(t, &b, service.SuggestPartner(teams, a))
	assert.Equal(t, &a, service.SuggestPartner(teams, b))
	assert.Nil(t, service.SuggestPartner(teams, c))
	assert.Nil(t, service.SuggestPartner(nil, a))
}

func TestTeamService_CreateAndSuggest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createTeamService(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})
	b := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})

	team, err := svc.Create(ctx, domain.ModuleVectra, &domain.CreateTeamRequest{
		Name:          "Crew 1",
		TechnicianAID: a.ID,
		TechnicianBID: b.ID,
	})
	require.NoError(t, err)
	assert.True(t, team.Active)

	suggestion, err := svc.SuggestedPartner(ctx, domain.ModuleVectra, b.ID)
	require.NoError(t, err)
	assert.Equal(t, &a.ID, suggestion.PartnerID)

	// teams do not cross modules
	suggestion, err = svc.SuggestedPartner(ctx, domain.ModuleOPL, b.ID)
	require.NoError(t, err)
	assert.Nil(t, suggestion.PartnerID)

	require.NoError(t, svc.Deactivate(ctx, domain.ModuleVectra, team.ID))
	suggestion, err = svc.SuggestedPartner(ctx, domain.ModuleVectra, b.ID)
	require.NoError(t, err)
	assert.Nil(t, suggestion.PartnerID)

	assert.ErrorIs(t, svc.Deactivate(ctx, domain.ModuleOPL, team.ID), service.ErrNotFound)
}

func TestTeamService_CreateRejectsInvalidMembers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createTeamService(db)
	ctx := context.Background()

	tech := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleOPL})
	otherModule := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})
	coordinator := testutil.CreateUser(t, db, domain.RoleCoordinator, []domain.ModuleCode{domain.ModuleOPL})

	cases := []struct {
		name string
		b    uuid.UUID
	}{
		{"same technician", tech.ID},
		{"no sub-profile in module", otherModule.ID},
		{"not a technician", coordinator.ID},
		{"unknown user", uuid.New()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, domain.ModuleOPL, &domain.CreateTeamRequest{
				TechnicianAID: tech.ID,
				TechnicianBID: tc.b,
			})
			assert.ErrorIs(t, err, service.ErrInvalidInput)
		})
	}

	teams, err := svc.List(ctx, domain.ModuleOPL, false)
	require.NoError(t, err)
	assert.Empty(t, teams)
}
