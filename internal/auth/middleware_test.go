package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubUsers map[uuid.UUID]*domain.User

func (s stubUsers) GetByIDWithAccess(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

type stubLocations map[uuid.UUID]bool

func (s stubLocations) CountByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if s[id] {
			n++
		}
	}
	return n, nil
}

func newTestMiddleware(users stubUsers, locations ...uuid.UUID) (*auth.Middleware, *auth.JWTValidator) {
	cfg := &config.Config{
		Auth:   config.AuthConfig{JWTSecret: "secret"},
		ApiKey: config.ApiKeyConfig{Value: "test-api-key"},
	}
	known := stubLocations{}
	for _, id := range locations {
		known[id] = true
	}
	return auth.NewMiddleware(cfg, users, known, zap.NewNop()), auth.NewJWTValidator(&cfg.Auth)
}

func newTechnician(modules ...domain.ModuleCode) *domain.User {
	u := &domain.User{Name: "Tech", Email: "tech@example.com", Role: domain.RoleTechnician}
	u.ID = uuid.New()
	for _, m := range modules {
		u.ModuleAccess = append(u.ModuleAccess, domain.ModuleAccess{UserID: u.ID, ModuleCode: m, Active: true})
	}
	return u
}

func TestMiddleware_Authenticate(t *testing.T) {
	tech := newTechnician(domain.ModuleOPL)
	blocked := newTechnician()
	blocked.IsBlocked = true
	mw, issuer := newTestMiddleware(stubUsers{tech.ID: tech, blocked.ID: blocked})

	var captured *auth.UserContext
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("api key authenticates the system user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/core/users", nil)
		req.Header.Set("x-api-key", "test-api-key")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, captured)
		assert.True(t, captured.IsSystem)
		assert.True(t, captured.IsAdmin())
	})

	t.Run("invalid api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "wrong")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), domain.CodeUnauthorized)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer token loads the user", func(t *testing.T) {
		token, err := issuer.IssueToken(tech.ID, tech.Email, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, captured)
		assert.Equal(t, tech.ID, captured.UserID)
		assert.Equal(t, domain.RoleTechnician, captured.Role)
		assert.Equal(t, []domain.ModuleCode{domain.ModuleOPL}, captured.Modules)
	})

	t.Run("blocked user", func(t *testing.T) {
		token, err := issuer.IssueToken(blocked.ID, "", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		token, err := issuer.IssueToken(uuid.New(), "", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func serveAs(user *auth.UserContext, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(auth.WithUserContext(req.Context(), user)))
	return w
}

func TestMiddleware_RequireRoleAndModule(t *testing.T) {
	mw, _ := newTestMiddleware(nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, found := auth.ModuleFromContext(r.Context())
		if found {
			w.Header().Set("X-Module", string(m.Code))
		}
		w.WriteHeader(http.StatusOK)
	})

	tech := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleTechnician, Modules: []domain.ModuleCode{domain.ModuleVectra}}

	w := serveAs(tech, mw.RequireRole(domain.RoleAdmin, domain.RoleCoordinator)(ok), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serveAs(tech, mw.RequireModule(domain.ModuleOPL)(ok), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serveAs(tech, mw.RequireModule(domain.ModuleVectra)(ok), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "vectra", w.Header().Get("X-Module"))

	w = httptest.NewRecorder()
	mw.RequireRole(domain.RoleAdmin)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_ResolveLocation(t *testing.T) {
	loc := uuid.New()
	mw, _ := newTestMiddleware(nil, loc)
	var caps *auth.Capabilities
	h := mw.ResolveLocation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caps, _ = auth.CapabilitiesFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	admin := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleAdmin}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.LocationHeader, loc.String())
	w := serveAs(admin, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, caps)
	assert.Equal(t, loc, *caps.ActiveLocationID)

	req = httptest.NewRequest(http.MethodGet, "/?locationId="+loc.String(), nil)
	w = serveAs(admin, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, loc, *caps.ActiveLocationID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.LocationHeader, "garbage")
	w = serveAs(admin, h, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	coordinator := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleCoordinator}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.LocationHeader, uuid.New().String())
	w = serveAs(coordinator, h, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown location")

	warehouseman := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleWarehouseman}
	w = serveAs(warehouseman, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
