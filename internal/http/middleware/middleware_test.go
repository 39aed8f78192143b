package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/http/middleware"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func withUser(user *auth.UserContext, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithUserContext(r.Context(), user)))
	})
}

func withModule(code domain.ModuleCode, next http.Handler) http.Handler {
	m, _ := domain.LookupModule(code)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithModule(r.Context(), m)))
	})
}

func TestLogging_AssignsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := middleware.Logging(zap.New(core))(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	id := w.Header().Get(middleware.RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, id, fields["request_id"])
	assert.EqualValues(t, http.StatusOK, fields["status_code"])
}

func TestLogging_KeepsValidIncomingRequestID(t *testing.T) {
	h := middleware.Logging(zap.NewNop())(okHandler)
	incoming := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, incoming)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "not-an-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEqual(t, "not-an-id", w.Header().Get(middleware.RequestIDHeader))
}

func TestLogging_TagAddsUserAndModule(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleTechnician}
	h := middleware.Logging(zap.New(core))(
		withUser(user, withModule(domain.ModuleOPL, middleware.Tag(okHandler))),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/opl/orders", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, user.UserID.String(), fields["user_id"])
	assert.Equal(t, "TECHNICIAN", fields["role"])
	assert.Equal(t, "opl", fields["module"])
}

func TestRecovery_ReturnsProblem(t *testing.T) {
	h := middleware.Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body domain.APIError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, domain.CodeInternal, body.Code)
}

func TestSecurityHeaders(t *testing.T) {
	cfg := &config.SecurityConfig{
		EnableHSTS:            true,
		HSTSMaxAge:            600,
		HSTSIncludeSubdomains: true,
		ContentTypeNosniff:    true,
		FrameOptions:          "DENY",
		NoStorePrefixes:       []string{"/api/"},
	}
	h := middleware.SecurityHeaders(cfg)(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/core/users/me", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "max-age=600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Referrer-Policy"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func preflight(h http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/core/users/me", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	base := config.CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Location-ID"},
		MaxAge:         300,
	}

	t.Run("development allows any origin", func(t *testing.T) {
		cfg := base
		h := middleware.CORS(&cfg, "development", zap.NewNop())(okHandler)
		assert.Equal(t, "http://localhost:5173", preflight(h, "http://localhost:5173").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("explicit origins", func(t *testing.T) {
		cfg := base
		cfg.AllowedOrigins = []string{"https://crm.example.com"}
		h := middleware.CORS(&cfg, "production", zap.NewNop())(okHandler)
		assert.Equal(t, "https://crm.example.com", preflight(h, "https://crm.example.com").Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, preflight(h, "https://evil.example.com").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("production without origins denies", func(t *testing.T) {
		cfg := base
		h := middleware.CORS(&cfg, "production", zap.NewNop())(okHandler)
		assert.Empty(t, preflight(h, "https://crm.example.com").Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimiter(t *testing.T) {
	cfg := &config.RateLimitConfig{
		Enabled:               true,
		RequestsPerMinute:     2,
		RequestsPerMinuteAuth: 2,
		WhitelistPaths:        []string{"/health/*"},
	}

	t.Run("limits by ip", func(t *testing.T) {
		h := middleware.NewRateLimiter(cfg, zap.NewNop()).LimitByIP(okHandler)
		var last *httptest.ResponseRecorder
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/core/users/me", nil)
			req.RemoteAddr = "10.0.0.1:4000"
			last = httptest.NewRecorder()
			h.ServeHTTP(last, req)
		}
		assert.Equal(t, http.StatusTooManyRequests, last.Code)
		assert.Equal(t, "60", last.Header().Get("Retry-After"))
		var body domain.APIError
		require.NoError(t, json.NewDecoder(last.Body).Decode(&body))
		assert.Equal(t, middleware.CodeRateLimited, body.Code)
	})

	t.Run("whitelisted prefix", func(t *testing.T) {
		h := middleware.NewRateLimiter(cfg, zap.NewNop()).LimitByIP(okHandler)
		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("system user is not limited", func(t *testing.T) {
		rl := middleware.NewRateLimiter(cfg, zap.NewNop())
		h := withUser(&auth.UserContext{UserID: auth.SystemUserID, Role: domain.RoleAdmin, IsSystem: true}, rl.LimitByUser(okHandler))
		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/core/users", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("users are limited separately", func(t *testing.T) {
		rl := middleware.NewRateLimiter(cfg, zap.NewNop())
		first := withUser(&auth.UserContext{UserID: uuid.New()}, rl.LimitByUser(okHandler))
		second := withUser(&auth.UserContext{UserID: uuid.New()}, rl.LimitByUser(okHandler))
		for i := 0; i < 2; i++ {
			first.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/opl/orders", nil))
		}
		w := httptest.NewRecorder()
		first.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/opl/orders", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		w = httptest.NewRecorder()
		second.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/opl/orders", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type recordedAudit struct {
	entry service.LogEntry
	user  *auth.UserContext
}

type chanRecorder chan recordedAudit

func (c chanRecorder) Log(ctx context.Context, _ *http.Request, entry service.LogEntry) error {
	user, _ := auth.FromContext(ctx)
	c <- recordedAudit{entry: entry, user: user}
	return nil
}

func auditRouter(rec chanRecorder, status int) http.Handler {
	user := &auth.UserContext{UserID: uuid.New(), Role: domain.RoleCoordinator}
	audit := middleware.NewAuditMiddleware(rec, nil, zap.NewNop())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return withUser(user, next) })
	r.Use(func(next http.Handler) http.Handler { return withModule(domain.ModuleVectra, next) })
	r.Use(audit.Audit)
	handle := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }
	r.Post("/api/v1/vectra/orders/{id}/complete", handle)
	r.Get("/api/v1/vectra/orders", handle)
	r.Post("/swagger/*", handle)
	return r
}

func TestAudit_RecordsSuccessfulWrites(t *testing.T) {
	rec := make(chanRecorder, 1)
	h := auditRouter(rec, http.StatusOK)
	id := uuid.New()

	body := `{"status":"COMPLETED","token":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vectra/orders/"+id.String()+"/complete", strings.NewReader(body))
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case got := <-rec:
		assert.Equal(t, domain.AuditActionCreate, got.entry.Action)
		assert.Equal(t, "Order", got.entry.EntityType)
		require.NotNil(t, got.entry.EntityID)
		assert.Equal(t, id, *got.entry.EntityID)
		assert.Equal(t, "vectra", got.entry.ModuleCode)
		assert.Equal(t, "COMPLETED", got.entry.NewValues.(map[string]interface{})["status"])
		require.NotNil(t, got.user)
		assert.Equal(t, domain.RoleCoordinator, got.user.Role)
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry not recorded")
	}
}

func TestAudit_SkipsReadsFailuresAndSkipPaths(t *testing.T) {
	rec := make(chanRecorder, 1)

	auditRouter(rec, http.StatusOK).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/vectra/orders", nil))
	auditRouter(rec, http.StatusConflict).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/api/v1/vectra/orders/"+uuid.NewString()+"/complete", strings.NewReader(`{}`)))
	auditRouter(rec, http.StatusOK).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/swagger/doc.json", strings.NewReader(`{}`)))

	select {
	case got := <-rec:
		t.Fatalf("unexpected audit entry %+v", got.entry)
	case <-time.After(100 * time.Millisecond):
	}
}
