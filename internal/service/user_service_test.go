package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mail"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingMailer struct {
	sent []mail.Template
	to   []string
	err  error
}

func (m *recordingMailer) SendTemplate(_ context.Context, name mail.Template, _ any, to ...string) error {
	m.sent = append(m.sent, name)
	m.to = append(m.to, to...)
	return m.err
}

func (m *recordingMailer) AppURL() string { return "https://crm.example.com" }

func createUserService(db *gorm.DB, mailer service.Mailer) *service.UserService {
	return service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewModuleAccessRepository(db),
		repository.NewLocationRepository(db),
		mailer,
		zap.NewNop(),
		db,
	)
}

func TestUserService_CreateWithModulesAndLocations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mailer := &recordingMailer{}
	svc := createUserService(db, mailer)
	loc := testutil.CreateLocation(t, db, "North")

	user, err := svc.Create(context.Background(), &domain.CreateUserRequest{
		Name:        "  Jan Nowak ",
		Email:       "Jan.Nowak@Example.com",
		Role:        domain.RoleWarehouseman,
		Modules:     []domain.ModuleCode{domain.ModuleVectra},
		LocationIDs: []uuid.UUID{loc.ID, loc.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Jan Nowak", user.Name)
	assert.Equal(t, "jan.nowak@example.com", user.Email)
	assert.Equal(t, []domain.ModuleCode{domain.ModuleVectra}, user.Modules)
	assert.Equal(t, []uuid.UUID{loc.ID}, user.LocationIDs)
	assert.Equal(t, []mail.Template{mail.TemplateAccountCreated}, mailer.sent)
	assert.Equal(t, []string{"jan.nowak@example.com"}, mailer.to)

	_, err = svc.Create(context.Background(), &domain.CreateUserRequest{
		Name:  "Someone",
		Email: "jan.nowak@example.com",
		Role:  domain.RoleTechnician,
	})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestUserService_CreateSurvivesMailFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, &recordingMailer{err: errors.New("smtp down")})

	user, err := svc.Create(context.Background(), &domain.CreateUserRequest{
		Name:  "Tech",
		Email: "tech@example.com",
		Role:  domain.RoleTechnician,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestUserService_CreateRejectsUnknownLocation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, nil)

	_, err := svc.Create(context.Background(), &domain.CreateUserRequest{
		Name:        "Ware",
		Email:       "ware@example.com",
		Role:        domain.RoleWarehouseman,
		LocationIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	var count int64
	require.NoError(t, db.Model(&domain.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUserService_SyncModules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})

	records, err := svc.SyncModules(ctx, user.ID, []domain.ModuleCode{domain.ModuleOPL})
	require.NoError(t, err)
	active := map[domain.ModuleCode]bool{}
	for _, r := range records {
		active[r.ModuleCode] = r.Active
	}
	assert.False(t, active[domain.ModuleVectra])
	assert.True(t, active[domain.ModuleOPL])

	// reactivation keeps a single record per module
	_, err = svc.SyncModules(ctx, user.ID, []domain.ModuleCode{domain.ModuleVectra, domain.ModuleOPL})
	require.NoError(t, err)
	all, err := svc.ListModuleAccess(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, r := range all {
		assert.True(t, r.Active)
	}

	_, err = svc.SyncModules(ctx, user.ID, []domain.ModuleCode{"crm"})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.SyncModules(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestUserService_DeactivateModuleIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleOPL})

	first, err := svc.DeactivateModule(ctx, user.ID, domain.ModuleOPL)
	require.NoError(t, err)
	assert.False(t, first.Active)
	require.NotNil(t, first.DeactivatedAt)

	second, err := svc.DeactivateModule(ctx, user.ID, domain.ModuleOPL)
	require.NoError(t, err)
	assert.Equal(t, first.DeactivatedAt, second.DeactivatedAt)

	_, err = svc.DeactivateModule(ctx, user.ID, domain.ModuleVectra)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestUserService_SetBlocked(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, nil)
	admin := testutil.CreateUser(t, db, domain.RoleAdmin, nil)
	tech := testutil.CreateUser(t, db, domain.RoleTechnician, nil)
	ctx := userContext(admin)

	_, err := svc.SetBlocked(ctx, admin.ID, true)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	blocked, err := svc.SetBlocked(ctx, tech.ID, true)
	require.NoError(t, err)
	assert.True(t, blocked.IsBlocked)

	_, err = svc.SetBlocked(ctx, uuid.New(), true)
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestUserService_MeReturnsCapabilities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, nil)
	loc := testutil.CreateLocation(t, db, "South")
	ware := testutil.CreateUser(t, db, domain.RoleWarehouseman, []domain.ModuleCode{domain.ModuleVectra}, loc.ID)

	me, err := svc.Me(staffContext(t, ware, nil))
	require.NoError(t, err)
	assert.Equal(t, ware.ID, me.User.ID)
	assert.True(t, me.Capabilities.IsWarehouseman)
	assert.Equal(t, &loc.ID, me.Capabilities.ActiveLocationID)

	_, err = svc.Me(context.Background())
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestUserService_MeForSystemUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createUserService(db, nil)

	uc := &auth.UserContext{UserID: auth.SystemUserID, Name: "system", Role: domain.RoleAdmin, IsSystem: true}
	caps, err := auth.ResolveCapabilities(uc, nil)
	require.NoError(t, err)
	ctx := auth.WithCapabilities(auth.WithUserContext(context.Background(), uc), caps)

	me, err := svc.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.SystemUserID, me.User.ID)
	assert.True(t, me.Capabilities.IsAdmin)
}
