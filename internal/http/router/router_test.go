package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/http/handler"
	"github.com/fieldcrm/crm-api/internal/http/middleware"
	"github.com/fieldcrm/crm-api/internal/http/router"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSecret = "router-test-secret"
	testAPIKey = "router-test-key"
)

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	tokens  *auth.JWTValidator
}

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "test", Environment: "development"},
		Auth:    config.AuthConfig{JWTSecret: testSecret},
		ApiKey:  config.ApiKeyConfig{Value: testAPIKey},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Security: config.SecurityConfig{
			ContentTypeNosniff: true,
			NoStorePrefixes:    []string{"/api/"},
		},
		RateLimit: config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1000, RequestsPerMinuteAuth: 1000},
		Server:    config.ServerConfig{EnableSwagger: true},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testConfig()
	log := zap.NewNop()
	m := metrics.New()

	userRepo := repository.NewUserRepository(db)
	accessRepo := repository.NewModuleAccessRepository(db)
	settingsRepo := repository.NewTechnicianSettingsRepository(db)
	auditService := service.NewAuditLogService(repository.NewAuditLogRepository(db), log)

	modules := make(map[domain.ModuleCode]router.ModuleHandlers)
	for _, md := range domain.Modules() {
		orderRepo := repository.NewOrderRepository(db, md)
		stockRepo := repository.NewStockRepository(db, md)
		orders := service.NewOrderService(orderRepo, stockRepo, repository.NewRateRepository(db, md), userRepo, accessRepo, settingsRepo, nil, m, log, db)
		modules[md.Code] = router.ModuleHandlers{
			Orders:    handler.NewOrderHandler(orders, log),
			Warehouse: handler.NewWarehouseHandler(service.NewWarehouseService(stockRepo, orderRepo, userRepo, accessRepo, m, log, db), log),
			Reports:   handler.NewReportHandler(service.NewReportService(orders, stockRepo, orderRepo, userRepo, nil, m, log), log),
		}
	}

	rt := router.NewRouter(
		cfg,
		log,
		auth.NewMiddleware(cfg, userRepo, repository.NewLocationRepository(db), log),
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		middleware.NewAuditMiddleware(auditService, nil, log),
		m,
		handler.NewHealthHandler(db, log),
		handler.NewUserHandler(service.NewUserService(userRepo, accessRepo, repository.NewLocationRepository(db), nil, log, db), log),
		handler.NewTeamHandler(
			service.NewTeamService(repository.NewTeamRepository(db), userRepo, accessRepo, log),
			service.NewSettingsService(settingsRepo, log),
			log,
		),
		handler.NewAuditHandler(auditService, log),
		modules,
	)

	return &testServer{
		handler: rt.Setup(),
		db:      db,
		tokens:  auth.NewJWTValidator(&cfg.Auth),
	}
}

func (s *testServer) do(t *testing.T, user *domain.User, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := s.tokens.IssueToken(user.ID, user.Email, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func problemCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr), rr.Body.String())
	return apiErr.Code
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))

	rr = s.do(t, nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_SwaggerDocs(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, nil, http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var doc struct {
		Swagger  string                     `json:"swagger"`
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Contains(t, doc.Paths, "/{module}/orders/{id}/complete")
	assert.Contains(t, doc.Paths, "/{module}/warehouse/items/{id}/assign")
	assert.Contains(t, doc.Paths, "/core/users/me")
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, nil, http.MethodGet, "/api/v1/core/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, domain.CodeUnauthorized, problemCode(t, rr))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = s.do(t, nil, http.MethodGet, "/api/v1/core/users/me", nil, "x-api-key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_BlockedUserIsRejected(t *testing.T) {
	s := newTestServer(t)
	tech := testutil.CreateUser(t, s.db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})
	require.NoError(t, s.db.Model(&domain.User{}).Where("id = ?", tech.ID).Update("is_blocked", true).Error)

	rr := s.do(t, tech, http.MethodGet, "/api/v1/core/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_ModuleAccess(t *testing.T) {
	s := newTestServer(t)
	tech := testutil.CreateUser(t, s.db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})

	rr := s.do(t, tech, http.MethodGet, "/api/v1/vectra/orders", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, tech, http.MethodGet, "/api/v1/opl/orders", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, domain.CodeModuleNotAvailable, problemCode(t, rr))
}

func TestRouter_RoleGates(t *testing.T) {
	s := newTestServer(t)
	tech := testutil.CreateUser(t, s.db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})
	coordinator := testutil.CreateUser(t, s.db, domain.RoleCoordinator, []domain.ModuleCode{domain.ModuleVectra})

	order := map[string]interface{}{
		"orderNumber": "VX-1001",
		"type":        "INSTALLATION",
		"date":        "2026-10-20T00:00:00Z",
		"city":        "Gdansk",
		"street":      "Dluga 1",
	}

	rr := s.do(t, tech, http.MethodPost, "/api/v1/vectra/orders", order)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, domain.CodeForbidden, problemCode(t, rr))

	rr = s.do(t, coordinator, http.MethodPost, "/api/v1/vectra/orders", order)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created domain.OrderDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, domain.OrderStatusPending, created.Status)
	assert.Equal(t, 1, created.AttemptNumber)

	rr = s.do(t, coordinator, http.MethodPost, "/api/v1/vectra/orders", order)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, tech, http.MethodGet, "/api/v1/core/users", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, coordinator, http.MethodGet, "/api/v1/core/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_ValidationError(t *testing.T) {
	s := newTestServer(t)
	coordinator := testutil.CreateUser(t, s.db, domain.RoleCoordinator, []domain.ModuleCode{domain.ModuleVectra})

	rr := s.do(t, coordinator, http.MethodPost, "/api/v1/vectra/orders", map[string]string{"type": "PICNIC"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.CodeBadRequest, problemCode(t, rr))

	rr = s.do(t, coordinator, http.MethodGet, "/api/v1/vectra/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_WarehouseFlow(t *testing.T) {
	s := newTestServer(t)
	loc := testutil.CreateLocation(t, s.db, "Main")
	keeper := testutil.CreateUser(t, s.db, domain.RoleWarehouseman, []domain.ModuleCode{domain.ModuleVectra}, loc.ID)
	coordinator := testutil.CreateUser(t, s.db, domain.RoleCoordinator, []domain.ModuleCode{domain.ModuleVectra})
	tech := testutil.CreateUser(t, s.db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})

	receive := map[string]interface{}{
		"items": []map[string]interface{}{
			{"itemType": "MATERIAL", "name": "Cable", "quantity": 10},
		},
	}

	// Coordinators pick a location per request; writes without one are rejected
	rr := s.do(t, coordinator, http.MethodPost, "/api/v1/vectra/warehouse/receive", receive)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.CodeLocationRequired, problemCode(t, rr))

	rr = s.do(t, coordinator, http.MethodPost, "/api/v1/vectra/warehouse/receive", receive, auth.LocationHeader, uuid.NewString())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.CodeBadRequest, problemCode(t, rr))

	// Warehousemen default to their first location
	rr = s.do(t, keeper, http.MethodPost, "/api/v1/vectra/warehouse/receive", receive)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var items []domain.StockItemDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, &loc.ID, items[0].LocationID)

	issue := map[string]interface{}{
		"technicianId": tech.ID,
		"items":        []map[string]interface{}{{"itemId": items[0].ID, "quantity": 25}},
	}
	rr = s.do(t, keeper, http.MethodPost, "/api/v1/vectra/warehouse/issue", issue)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.CodeInsufficientStock, problemCode(t, rr))

	issue["items"] = []map[string]interface{}{{"itemId": items[0].ID, "quantity": 4}}
	rr = s.do(t, keeper, http.MethodPost, "/api/v1/vectra/warehouse/issue", issue)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, tech, http.MethodGet, "/api/v1/vectra/warehouse/sum?name=Cable&holderId="+tech.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var sum domain.StockSumDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 4, sum.Quantity)

	// Technicians may not look at the central warehouse
	rr = s.do(t, tech, http.MethodGet, "/api/v1/vectra/warehouse/sum?name=Cable", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = s.do(t, tech, http.MethodGet, "/api/v1/vectra/warehouse", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_WarehousemanLocationMustBeAssigned(t *testing.T) {
	s := newTestServer(t)
	loc := testutil.CreateLocation(t, s.db, "Main")
	keeper := testutil.CreateUser(t, s.db, domain.RoleWarehouseman, []domain.ModuleCode{domain.ModuleVectra}, loc.ID)

	rr := s.do(t, keeper, http.MethodGet, "/api/v1/vectra/warehouse", nil, auth.LocationHeader, uuid.NewString())
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, keeper, http.MethodGet, "/api/v1/vectra/warehouse", nil, auth.LocationHeader, "garbage")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_SystemKeyActsAsAdmin(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, nil, http.MethodGet, "/api/v1/core/modules", nil, "x-api-key", testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var modules []domain.ModuleDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &modules))
	assert.NotEmpty(t, modules)

	rr = s.do(t, nil, http.MethodGet, "/api/v1/opl/orders", nil, "x-api-key", testAPIKey)
	assert.Equal(t, http.StatusOK, rr.Code)
}
