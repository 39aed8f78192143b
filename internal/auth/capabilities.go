package auth

import (
	"context"
	"errors"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrLocationRequired is returned when a write needs an active location and none was given
	ErrLocationRequired = errors.New("location required")
	// ErrForbidden is returned when the user lacks the role, module or location for an action
	ErrForbidden = errors.New("forbidden")
)

// Capabilities is the single resolved view of what the current user may do
type Capabilities struct {
	Role             domain.UserRole
	IsAdmin          bool
	IsCoordinator    bool
	IsWarehouseman   bool
	IsTechnician     bool
	ActiveLocationID *uuid.UUID
	Modules          []domain.ModuleCode
}

// ResolveCapabilities derives the capabilities of user for a request.
//
// Admins and coordinators choose their location per request; it may be absent for reads.
// Warehousemen default to their first assigned location and may only pick among their own.
// Technicians have no location.
func ResolveCapabilities(user *UserContext, requestedLocation *uuid.UUID) (*Capabilities, error) {
	caps := &Capabilities{
		Role:           user.Role,
		IsAdmin:        user.Role == domain.RoleAdmin,
		IsCoordinator:  user.Role == domain.RoleCoordinator,
		IsWarehouseman: user.Role == domain.RoleWarehouseman,
		IsTechnician:   user.Role == domain.RoleTechnician,
		Modules:        user.Modules,
	}

	switch user.Role {
	case domain.RoleAdmin, domain.RoleCoordinator:
		caps.ActiveLocationID = requestedLocation
	case domain.RoleWarehouseman:
		if len(user.LocationIDs) == 0 {
			return nil, ErrForbidden
		}
		if requestedLocation == nil {
			first := user.LocationIDs[0]
			caps.ActiveLocationID = &first
			break
		}
		if !containsID(user.LocationIDs, *requestedLocation) {
			return nil, ErrForbidden
		}
		caps.ActiveLocationID = requestedLocation
	case domain.RoleTechnician:
	default:
		return nil, ErrForbidden
	}
	return caps, nil
}

// RequireLocation returns the active location for write operations
func (c *Capabilities) RequireLocation() (uuid.UUID, error) {
	if c.IsTechnician {
		return uuid.Nil, ErrForbidden
	}
	if c.ActiveLocationID == nil {
		return uuid.Nil, ErrLocationRequired
	}
	return *c.ActiveLocationID, nil
}

// ToDTO converts the capabilities for the client
func (c *Capabilities) ToDTO() domain.CapabilitiesDTO {
	modules := c.Modules
	if modules == nil {
		modules = []domain.ModuleCode{}
	}
	return domain.CapabilitiesDTO{
		Role:             c.Role,
		IsAdmin:          c.IsAdmin,
		IsCoordinator:    c.IsCoordinator,
		IsWarehouseman:   c.IsWarehouseman,
		IsTechnician:     c.IsTechnician,
		ActiveLocationID: c.ActiveLocationID,
		Modules:          modules,
	}
}

// WithCapabilities stores resolved capabilities in the context
func WithCapabilities(ctx context.Context, caps *Capabilities) context.Context {
	return context.WithValue(ctx, capabilitiesKey, caps)
}

// CapabilitiesFromContext returns the capabilities resolved for the request
func CapabilitiesFromContext(ctx context.Context) (*Capabilities, bool) {
	caps, ok := ctx.Value(capabilitiesKey).(*Capabilities)
	return caps, ok
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
