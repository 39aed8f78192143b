package auth

import (
	"context"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
)

// SystemUserID identifies requests authenticated with the admin API key
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000000")

// UserContext holds authenticated user information
type UserContext struct {
	UserID      uuid.UUID
	Name        string
	Email       string
	Role        domain.UserRole
	Modules     []domain.ModuleCode
	LocationIDs []uuid.UUID
	IsSystem    bool
}

type contextKey string

const (
	userContextKey   contextKey = "userContext"
	capabilitiesKey  contextKey = "capabilities"
	moduleContextKey contextKey = "module"
)

// NewUserContext builds the request identity from a loaded user
func NewUserContext(user *domain.User) *UserContext {
	return &UserContext{
		UserID:      user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Modules:     user.ActiveModules(),
		LocationIDs: user.LocationIDs(),
	}
}

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// HasRole checks if user has a specific role
func (u *UserContext) HasRole(role domain.UserRole) bool {
	return u.Role == role
}

// HasAnyRole checks if user has any of the specified roles
func (u *UserContext) HasAnyRole(roles ...domain.UserRole) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is an administrator
func (u *UserContext) IsAdmin() bool {
	return u.Role == domain.RoleAdmin
}

// IsStaff reports whether the user works in the office or warehouse
func (u *UserContext) IsStaff() bool {
	return u.HasAnyRole(domain.RoleAdmin, domain.RoleCoordinator, domain.RoleWarehouseman)
}

// HasModule reports whether the user has active access to the module.
// Administrators and the system user have access to every module.
func (u *UserContext) HasModule(code domain.ModuleCode) bool {
	if u.IsSystem || u.IsAdmin() {
		return true
	}
	for _, m := range u.Modules {
		if m == code {
			return true
		}
	}
	return false
}

// WithModule stores the module descriptor a request operates on
func WithModule(ctx context.Context, m *domain.ModuleDescriptor) context.Context {
	return context.WithValue(ctx, moduleContextKey, m)
}

// ModuleFromContext returns the module descriptor of the request
func ModuleFromContext(ctx context.Context) (*domain.ModuleDescriptor, bool) {
	m, ok := ctx.Value(moduleContextKey).(*domain.ModuleDescriptor)
	return m, ok
}
