package service_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuditLogService_LogCapturesActorAndRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewAuditLogService(repository.NewAuditLogRepository(db), zap.NewNop())

	admin := testutil.CreateUser(t, db, domain.RoleAdmin, nil)
	ctx := auth.WithModule(userContext(admin), testutil.MustModule(t, domain.ModuleVectra))

	r := httptest.NewRequest("POST", "/api/v1/vectra/orders", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.7, 172.16.0.1")
	r.Header.Set("X-Request-ID", "req-1")

	entityID := uuid.New()
	err := svc.Log(ctx, r, service.LogEntry{
		Action:     domain.AuditActionCreate,
		EntityType: "Order",
		EntityID:   &entityID,
		NewValues:  map[string]interface{}{"orderNumber": "A-1", "password": "hunter2"},
	})
	require.NoError(t, err)

	var stored domain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, &admin.ID, stored.UserID)
	assert.Equal(t, admin.Email, stored.UserEmail)
	assert.Equal(t, "vectra", stored.ModuleCode)
	assert.Equal(t, "10.0.0.7", stored.IPAddress)
	assert.Equal(t, "req-1", stored.RequestID)
	assert.Contains(t, stored.NewValues, "A-1")
	assert.NotContains(t, stored.NewValues, "hunter2")
}

func TestAuditLogService_ListFiltersAndCleanup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAuditLogRepository(db)
	svc := service.NewAuditLogService(repo, zap.NewNop())
	ctx := context.Background()

	old := &domain.AuditLog{
		Action:      domain.AuditActionDelete,
		EntityType:  "User",
		PerformedAt: time.Now().UTC().AddDate(0, 0, -400),
	}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, svc.Log(ctx, nil, service.LogEntry{Action: domain.AuditActionUpdate, EntityType: "Team"}))

	page, err := svc.List(ctx, service.AuditLogQueryParams{EntityType: "Team"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = svc.CleanupOldLogs(ctx, 0)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	deleted, err := svc.CleanupOldLogs(ctx, 365)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	page, err = svc.List(ctx, service.AuditLogQueryParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}
