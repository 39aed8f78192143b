package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate assigns a new id when none is set
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// UserRole is the global role of a user. It never changes within a request.
type UserRole string

const (
	RoleAdmin        UserRole = "ADMIN"
	RoleCoordinator  UserRole = "COORDINATOR"
	RoleWarehouseman UserRole = "WAREHOUSEMAN"
	RoleTechnician   UserRole = "TECHNICIAN"
)

// IsValid reports whether r is a known role
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleWarehouseman, RoleTechnician:
		return true
	}
	return false
}

// ModuleCode identifies a branded product line
type ModuleCode string

const (
	ModuleVectra ModuleCode = "vectra"
	ModuleOPL    ModuleCode = "opl"
	ModuleHR     ModuleCode = "hr"
)

// IsValid reports whether c is a known module code
func (c ModuleCode) IsValid() bool {
	switch c {
	case ModuleVectra, ModuleOPL, ModuleHR:
		return true
	}
	return false
}

// Module is a seeded reference row for a product line
type Module struct {
	Code      ModuleCode `gorm:"type:varchar(20);primary_key"`
	Name      string     `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// User represents an employee account
type User struct {
	BaseModel
	Name         string         `gorm:"type:varchar(200);not null"`
	Email        string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email"`
	Phone        string         `gorm:"type:varchar(50)"`
	Role         UserRole       `gorm:"type:varchar(20);not null"`
	IsBlocked    bool           `gorm:"not null;default:false;column:is_blocked"`
	ModuleAccess []ModuleAccess `gorm:"foreignKey:UserID"`
	Locations    []UserLocation `gorm:"foreignKey:UserID"`
}

// ActiveModules returns the codes of the modules the user currently has access to
func (u *User) ActiveModules() []ModuleCode {
	codes := make([]ModuleCode, 0, len(u.ModuleAccess))
	for _, m := range u.ModuleAccess {
		if m.Active {
			codes = append(codes, m.ModuleCode)
		}
	}
	return codes
}

// LocationIDs returns the assigned location ids in assignment order
func (u *User) LocationIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(u.Locations))
	for _, l := range u.Locations {
		ids = append(ids, l.LocationID)
	}
	return ids
}

// Location is a central warehouse site
type Location struct {
	BaseModel
	Name string `gorm:"type:varchar(200);not null;uniqueIndex:idx_locations_name"`
}

// UserLocation assigns a user to a location
type UserLocation struct {
	UserID     uuid.UUID `gorm:"type:uuid;primary_key;column:user_id"`
	LocationID uuid.UUID `gorm:"type:uuid;primary_key;column:location_id"`
	Location   *Location `gorm:"foreignKey:LocationID"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// ModuleAccess is the per-module activation record of a user.
// Deactivation keeps the row and stamps DeactivatedAt.
type ModuleAccess struct {
	BaseModel
	UserID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_module_access;column:user_id"`
	ModuleCode    ModuleCode `gorm:"type:varchar(20);not null;uniqueIndex:idx_user_module_access;column:module_code"`
	Active        bool       `gorm:"not null;default:true"`
	ActivatedAt   time.Time  `gorm:"not null;column:activated_at"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at"`
}

// TableName overrides the default table name
func (ModuleAccess) TableName() string {
	return "user_module_access"
}

// Team is a fixed pairing of two technicians within a module
type Team struct {
	BaseModel
	ModuleCode    ModuleCode `gorm:"type:varchar(20);not null;column:module_code"`
	Name          string     `gorm:"type:varchar(100)"`
	TechnicianAID uuid.UUID  `gorm:"type:uuid;not null;column:technician_a_id"`
	TechnicianA   *User      `gorm:"foreignKey:TechnicianAID"`
	TechnicianBID uuid.UUID  `gorm:"type:uuid;not null;column:technician_b_id"`
	TechnicianB   *User      `gorm:"foreignKey:TechnicianBID"`
	Active        bool       `gorm:"not null;default:true"`
}

// Partner returns the other member of the team, or nil when technicianID is not a member
func (t *Team) Partner(technicianID uuid.UUID) *uuid.UUID {
	switch technicianID {
	case t.TechnicianAID:
		id := t.TechnicianBID
		return &id
	case t.TechnicianBID:
		id := t.TechnicianAID
		return &id
	}
	return nil
}

// TechnicianSettings holds monthly goals of a technician in a module
type TechnicianSettings struct {
	BaseModel
	UserID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_technician_settings;column:user_id"`
	ModuleCode      ModuleCode `gorm:"type:varchar(20);not null;uniqueIndex:idx_technician_settings;column:module_code"`
	WorkingDaysGoal int        `gorm:"not null;default:0;column:working_days_goal"`
	RevenueGoal     float64    `gorm:"type:decimal(12,2);not null;default:0;column:revenue_goal"`
}

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionRead   AuditAction = "read"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID          uuid.UUID   `gorm:"type:uuid;primary_key"`
	UserID      *uuid.UUID  `gorm:"type:uuid;column:user_id"`
	UserEmail   string      `gorm:"type:varchar(255);column:user_email"`
	UserName    string      `gorm:"type:varchar(200);column:user_name"`
	Action      AuditAction `gorm:"type:varchar(20);not null"`
	ModuleCode  string      `gorm:"type:varchar(20);column:module_code"`
	EntityType  string      `gorm:"type:varchar(50);not null;column:entity_type"`
	EntityID    *uuid.UUID  `gorm:"type:uuid;column:entity_id"`
	NewValues   string      `gorm:"type:text;column:new_values"`
	IPAddress   string      `gorm:"type:varchar(64);column:ip_address"`
	UserAgent   string      `gorm:"type:text;column:user_agent"`
	RequestID   string      `gorm:"type:varchar(100);column:request_id"`
	PerformedAt time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP;column:performed_at"`
}

// BeforeCreate assigns a new id when none is set
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
