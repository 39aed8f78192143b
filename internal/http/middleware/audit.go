package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAuditBody caps the request body kept for the audit record
const maxAuditBody = 64 << 10

// AuditRecorder persists audit entries
type AuditRecorder interface {
	Log(ctx context.Context, r *http.Request, entry service.LogEntry) error
}

// AuditConfig holds configuration for audit middleware
type AuditConfig struct {
	// SkipPaths contains path prefixes that are never audited
	SkipPaths []string
	// AuditReads enables auditing of GET requests
	AuditReads bool
}

// DefaultAuditConfig returns default audit configuration
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		SkipPaths: []string{"/health", "/metrics", "/swagger"},
	}
}

// AuditMiddleware records successful modifications in the audit log
type AuditMiddleware struct {
	recorder AuditRecorder
	config   *AuditConfig
	logger   *zap.Logger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(recorder AuditRecorder, config *AuditConfig, logger *zap.Logger) *AuditMiddleware {
	if config == nil {
		config = DefaultAuditConfig()
	}
	return &AuditMiddleware{
		recorder: recorder,
		config:   config,
		logger:   logger,
	}
}

// entityTypes maps route segments to audited entity names. The last match in the route
// pattern wins, so /users/{id}/modules is a ModuleAccess change.
var entityTypes = map[string]string{
	"users":              "User",
	"locations":          "Location",
	"modules":            "ModuleAccess",
	"blocked":            "User",
	"teams":              "Team",
	"settings":           "TechnicianSettings",
	"orders":             "Order",
	"warehouse":          "StockItem",
	"transfers":          "StockTransfer",
	"return-to-operator": "StockHistory",
	"reports":            "Report",
}

// Audit returns middleware that logs modifications to the audit log. Mount it after
// authentication so the entry carries the actor.
func (m *AuditMiddleware) Audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.shouldAudit(r) {
			next.ServeHTTP(w, r)
			return
		}

		var body []byte
		if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodDelete {
			body, _ = io.ReadAll(io.LimitReader(r.Body, maxAuditBody+1))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		}

		rw := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.statusCode < 200 || rw.statusCode >= 300 {
			return
		}
		// chi recycles the route context and the request context ends with the response
		entry := buildEntry(r, body)
		ctx := context.WithoutCancel(r.Context())
		go m.logAudit(ctx, r.Clone(ctx), entry)
	})
}

func (m *AuditMiddleware) shouldAudit(r *http.Request) bool {
	if m.recorder == nil {
		return false
	}
	switch r.Method {
	case http.MethodOptions, http.MethodHead:
		return false
	case http.MethodGet:
		if !m.config.AuditReads {
			return false
		}
	}
	for _, skip := range m.config.SkipPaths {
		if strings.HasPrefix(r.URL.Path, skip) {
			return false
		}
	}
	return true
}

func buildEntry(r *http.Request, body []byte) service.LogEntry {
	entityType, entityID := extractEntityInfo(r)
	entry := service.LogEntry{
		Action:     methodToAction(r.Method),
		EntityType: entityType,
		EntityID:   entityID,
	}
	if module, ok := auth.ModuleFromContext(r.Context()); ok {
		entry.ModuleCode = string(module.Code)
	}

	if len(body) > 0 && len(body) <= maxAuditBody {
		var parsed interface{}
		if json.Unmarshal(body, &parsed) == nil {
			entry.NewValues = parsed
		}
	}
	return entry
}

func (m *AuditMiddleware) logAudit(ctx context.Context, r *http.Request, entry service.LogEntry) {
	if err := m.recorder.Log(ctx, r, entry); err != nil {
		m.logger.Warn("failed to create audit log entry",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Error(err))
	}
}

func methodToAction(method string) domain.AuditAction {
	switch method {
	case http.MethodPost:
		return domain.AuditActionCreate
	case http.MethodPut, http.MethodPatch:
		return domain.AuditActionUpdate
	case http.MethodDelete:
		return domain.AuditActionDelete
	default:
		return domain.AuditActionRead
	}
}

// extractEntityInfo derives the entity from the chi route pattern and its first UUID param
func extractEntityInfo(r *http.Request) (string, *uuid.UUID) {
	path := r.URL.Path
	var entityID *uuid.UUID
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			path = pattern
		}
		for i, key := range rctx.URLParams.Keys {
			if key != "id" && !strings.HasSuffix(key, "Id") && !strings.HasSuffix(key, "ID") {
				continue
			}
			if id, err := uuid.Parse(rctx.URLParams.Values[i]); err == nil {
				entityID = &id
				break
			}
		}
	}

	entityType := "Unknown"
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if t, ok := entityTypes[part]; ok {
			entityType = t
		}
	}
	return entityType, entityID
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseCapture) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
