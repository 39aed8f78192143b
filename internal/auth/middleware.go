package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocationHeader carries the active location chosen by admins and coordinators
const LocationHeader = "X-Location-ID"

// UserLoader loads a user with module access and locations
type UserLoader interface {
	GetByIDWithAccess(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// LocationCounter reports how many of the given locations exist
type LocationCounter interface {
	CountByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Middleware handles authentication and authorization for HTTP requests
type Middleware struct {
	jwtValidator *JWTValidator
	users        UserLoader
	locations    LocationCounter
	apiKey       string
	logger       *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(cfg *config.Config, users UserLoader, locations LocationCounter, logger *zap.Logger) *Middleware {
	return &Middleware{
		jwtValidator: NewJWTValidator(&cfg.Auth),
		users:        users,
		locations:    locations,
		apiKey:       cfg.ApiKey.Value,
		logger:       logger,
	}
}

// Authenticate resolves the request identity from an API key or a bearer token
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
			if !m.validateAPIKey(apiKey) {
				m.logger.Warn("invalid API key attempt",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid API key")
				return
			}

			userCtx := &UserContext{
				UserID:   SystemUserID,
				Name:     "System",
				Email:    "system@fieldcrm.local",
				Role:     domain.RoleAdmin,
				IsSystem: true,
			}
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid authorization header format")
			return
		}

		userID, err := m.jwtValidator.ValidateToken(parts[1])
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, err.Error())
			return
		}

		user, err := m.users.GetByIDWithAccess(r.Context(), userID)
		if err != nil {
			m.logger.Warn("token subject could not be loaded",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "unknown user")
			return
		}
		if user.IsBlocked {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "account is blocked")
			return
		}

		userCtx := NewUserContext(user)
		m.logger.Debug("request authenticated",
			zap.String("path", r.URL.Path),
			zap.String("user_id", userCtx.UserID.String()),
			zap.String("role", string(userCtx.Role)),
			zap.Duration("auth_duration", time.Since(start)),
		)

		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
	})
}

// ResolveLocation attaches the request capabilities, reading the active location
// from the X-Location-ID header or the locationId query parameter.
func (m *Middleware) ResolveLocation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, ok := FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "no user context")
			return
		}

		var requested *uuid.UUID
		raw := r.Header.Get(LocationHeader)
		if raw == "" {
			raw = r.URL.Query().Get("locationId")
		}
		if raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid location id")
				return
			}
			requested = &id
		}

		// warehousemen are checked against their assignments instead
		if requested != nil && userCtx.Role != domain.RoleWarehouseman {
			count, err := m.locations.CountByIDs(r.Context(), []uuid.UUID{*requested})
			if err != nil {
				m.logger.Error("failed to look up location", zap.Error(err))
				writeError(w, http.StatusInternalServerError, domain.CodeInternal, "location lookup failed")
				return
			}
			if count == 0 {
				writeError(w, http.StatusBadRequest, domain.CodeBadRequest, "unknown location")
				return
			}
		}

		caps, err := ResolveCapabilities(userCtx, requested)
		if err != nil {
			m.logger.Warn("location could not be resolved",
				zap.String("user_id", userCtx.UserID.String()),
				zap.String("role", string(userCtx.Role)),
				zap.Error(err),
			)
			writeError(w, http.StatusForbidden, domain.CodeForbidden, "no accessible location")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCapabilities(r.Context(), caps)))
	})
}

// RequireRole middleware ensures user has one of the roles
func (m *Middleware) RequireRole(roles ...domain.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userCtx, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "no user context")
				return
			}
			if !userCtx.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, domain.CodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin middleware ensures user is an administrator or the system user
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireRole(domain.RoleAdmin)(next)
}

// RequireModule binds the request to a module and ensures the user has access to it
func (m *Middleware) RequireModule(code domain.ModuleCode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userCtx, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "no user context")
				return
			}
			if !userCtx.HasModule(code) {
				writeError(w, http.StatusForbidden, domain.CodeModuleNotAvailable, "no access to module "+string(code))
				return
			}

			ctx := r.Context()
			if descriptor, err := domain.LookupModule(code); err == nil {
				ctx = WithModule(ctx, descriptor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Middleware) validateAPIKey(key string) bool {
	if m.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	errType := domain.ErrorTypeUnauthorized
	switch status {
	case http.StatusInternalServerError:
		errType = domain.ErrorTypeInternal
	case http.StatusForbidden:
		errType = domain.ErrorTypeForbidden
	case http.StatusBadRequest:
		errType = domain.ErrorTypeBadRequest
	}
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   errType,
		Title:  http.StatusText(status),
		Status: status,
		Code:   code,
		Detail: detail,
	})
}

// IsAuthError reports whether err is one of the authorization sentinels
func IsAuthError(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrLocationRequired)
}
