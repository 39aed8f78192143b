package domain

import (
	"time"

	"github.com/google/uuid"
)

// Response DTOs

type UserDTO struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone,omitempty"`
	Role        UserRole     `json:"role"`
	IsBlocked   bool         `json:"isBlocked"`
	Modules     []ModuleCode `json:"modules"`
	LocationIDs []uuid.UUID  `json:"locationIds"`
	CreatedAt   string       `json:"createdAt"` // ISO 8601
}

// CapabilitiesDTO is the resolved role view used by clients to pick a layout
type CapabilitiesDTO struct {
	Role             UserRole     `json:"role"`
	IsAdmin          bool         `json:"isAdmin"`
	IsCoordinator    bool         `json:"isCoordinator"`
	IsWarehouseman   bool         `json:"isWarehouseman"`
	IsTechnician     bool         `json:"isTechnician"`
	ActiveLocationID *uuid.UUID   `json:"activeLocationId,omitempty"`
	Modules          []ModuleCode `json:"modules"`
}

type MeDTO struct {
	User         UserDTO         `json:"user"`
	Capabilities CapabilitiesDTO `json:"capabilities"`
}

type LocationDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ModuleAccessDTO struct {
	ModuleCode    ModuleCode `json:"moduleCode"`
	Active        bool       `json:"active"`
	ActivatedAt   string     `json:"activatedAt"`
	DeactivatedAt *string    `json:"deactivatedAt,omitempty"`
}

type TeamDTO struct {
	ID            uuid.UUID  `json:"id"`
	ModuleCode    ModuleCode `json:"moduleCode"`
	Name          string     `json:"name,omitempty"`
	TechnicianAID uuid.UUID  `json:"technicianAId"`
	TechnicianBID uuid.UUID  `json:"technicianBId"`
	Active        bool       `json:"active"`
}

type SuggestedPartnerDTO struct {
	TechnicianID uuid.UUID  `json:"technicianId"`
	PartnerID    *uuid.UUID `json:"partnerId"`
}

type TechnicianSettingsDTO struct {
	UserID          uuid.UUID  `json:"userId"`
	ModuleCode      ModuleCode `json:"moduleCode"`
	WorkingDaysGoal int        `json:"workingDaysGoal"`
	RevenueGoal     float64    `json:"revenueGoal"`
}

type OrderDTO struct {
	ID              uuid.UUID   `json:"id"`
	OrderNumber     string      `json:"orderNumber"`
	Type            OrderType   `json:"type"`
	Status          OrderStatus `json:"status"`
	Operator        string      `json:"operator,omitempty"`
	AssignedToID    *uuid.UUID  `json:"assignedToId,omitempty"`
	Date            string      `json:"date"` // YYYY-MM-DD
	TimeSlot        string      `json:"timeSlot,omitempty"`
	FailureReason   *string     `json:"failureReason,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	AttemptNumber   int         `json:"attemptNumber"`
	PreviousOrderID *uuid.UUID  `json:"previousOrderId,omitempty"`
	City            string      `json:"city,omitempty"`
	Street          string      `json:"street,omitempty"`
	PostalCode      string      `json:"postalCode,omitempty"`
	Latitude        *float64    `json:"latitude,omitempty"`
	Longitude       *float64    `json:"longitude,omitempty"`
	CompletedAt     *string     `json:"completedAt,omitempty"`
	CreatedAt       string      `json:"createdAt"`
	UpdatedAt       string      `json:"updatedAt"`
}

type WorkCodeDTO struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

type SettlementDTO struct {
	RateCode string  `json:"rateCode"`
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"`
}

// OrderDetailsDTO includes the order with its completion data and attached devices
type OrderDetailsDTO struct {
	OrderDTO
	WorkCodes   []WorkCodeDTO   `json:"workCodes"`
	Settlements []SettlementDTO `json:"settlements"`
	Devices     []StockItemDTO  `json:"devices"`
	Total       float64         `json:"total"`
}

type StockItemDTO struct {
	ID              uuid.UUID     `json:"id"`
	ItemType        StockItemType `json:"itemType"`
	Category        string        `json:"category,omitempty"`
	Name            string        `json:"name"`
	SerialNumber    *string       `json:"serialNumber,omitempty"`
	Quantity        int           `json:"quantity"`
	Price           float64       `json:"price"`
	AssignedToID    *uuid.UUID    `json:"assignedToId,omitempty"`
	LocationID      *uuid.UUID    `json:"locationId,omitempty"`
	OrderID         *uuid.UUID    `json:"orderId,omitempty"`
	Status          StockStatus   `json:"status"`
	TransferPending bool          `json:"transferPending"`
	TransferToID    *uuid.UUID    `json:"transferToId,omitempty"`
	UpdatedAt       string        `json:"updatedAt"`
}

type StockHistoryDTO struct {
	ID                   uuid.UUID   `json:"id"`
	WarehouseItemID      uuid.UUID   `json:"warehouseItemId"`
	Action               StockAction `json:"action"`
	Quantity             int         `json:"quantity"`
	FromHolderID         *uuid.UUID  `json:"fromHolderId,omitempty"`
	ToHolderID           *uuid.UUID  `json:"toHolderId,omitempty"`
	OrderID              *uuid.UUID  `json:"orderId,omitempty"`
	PerformedByID        uuid.UUID   `json:"performedById"`
	ReturnedToOperatorAt *string     `json:"returnedToOperatorAt,omitempty"`
	Notes                string      `json:"notes,omitempty"`
	ActionDate           string      `json:"actionDate"`
}

type StockSumDTO struct {
	HolderID     *uuid.UUID `json:"holderId,omitempty"`
	MaterialName string     `json:"materialName"`
	Quantity     int        `json:"quantity"`
}

// ReturnToOperatorResult reports how many history entries were newly returned
type ReturnToOperatorResult struct {
	Returned        int `json:"returned"`
	AlreadyReturned int `json:"alreadyReturned"`
}

// ReportFileDTO carries a generated spreadsheet to the client
type ReportFileDTO struct {
	FileName      string `json:"fileName"`
	ContentType   string `json:"contentType"`
	ContentBase64 string `json:"contentBase64"`
}

// EarningsDTO summarizes a technician's settlements in a month against their goals
type EarningsDTO struct {
	TechnicianID    uuid.UUID `json:"technicianId"`
	Month           string    `json:"month"` // YYYY-MM
	CompletedOrders int       `json:"completedOrders"`
	WorkingDays     int       `json:"workingDays"`
	Amount          float64   `json:"amount"`
	WorkingDaysGoal int       `json:"workingDaysGoal"`
	RevenueGoal     float64   `json:"revenueGoal"`
}

type RateDefinitionDTO struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
}

type MaterialDefinitionDTO struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Index string    `json:"index,omitempty"`
	Unit  string    `json:"unit"`
	Price float64   `json:"price"`
}

// CatalogDTO lists the billable rates and stocked materials of a module
type CatalogDTO struct {
	Rates     []RateDefinitionDTO     `json:"rates"`
	Materials []MaterialDefinitionDTO `json:"materials"`
}

type AuditLogDTO struct {
	ID          uuid.UUID   `json:"id"`
	UserID      *uuid.UUID  `json:"userId,omitempty"`
	UserEmail   string      `json:"userEmail,omitempty"`
	UserName    string      `json:"userName,omitempty"`
	Action      AuditAction `json:"action"`
	ModuleCode  string      `json:"moduleCode,omitempty"`
	EntityType  string      `json:"entityType"`
	EntityID    *uuid.UUID  `json:"entityId,omitempty"`
	NewValues   string      `json:"newValues,omitempty"`
	IPAddress   string      `json:"ipAddress,omitempty"`
	RequestID   string      `json:"requestId,omitempty"`
	PerformedAt string      `json:"performedAt"`
}

// SeedResult reports reference rows created versus already present
type SeedResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// Pagination response wrapper
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// Request DTOs

type CreateUserRequest struct {
	Name        string       `json:"name" validate:"required,max=200"`
	Email       string       `json:"email" validate:"required,email"`
	Phone       string       `json:"phone,omitempty" validate:"max=50"`
	Role        UserRole     `json:"role" validate:"required,oneof=ADMIN COORDINATOR WAREHOUSEMAN TECHNICIAN"`
	Modules     []ModuleCode `json:"modules,omitempty" validate:"dive,oneof=vectra opl hr"`
	LocationIDs []uuid.UUID  `json:"locationIds,omitempty"`
}

type SyncModulesRequest struct {
	Modules []ModuleCode `json:"modules" validate:"dive,oneof=vectra opl hr"`
}

type SetLocationsRequest struct {
	LocationIDs []uuid.UUID `json:"locationIds"`
}

type SetBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

type CreateLocationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type CreateTeamRequest struct {
	Name          string    `json:"name,omitempty" validate:"max=100"`
	TechnicianAID uuid.UUID `json:"technicianAId" validate:"required"`
	TechnicianBID uuid.UUID `json:"technicianBId" validate:"required,nefield=TechnicianAID"`
}

type UpdateTechnicianSettingsRequest struct {
	WorkingDaysGoal int     `json:"workingDaysGoal" validate:"gte=0,lte=31"`
	RevenueGoal     float64 `json:"revenueGoal" validate:"gte=0"`
}

type CreateOrderRequest struct {
	OrderNumber  string     `json:"orderNumber" validate:"required,max=100"`
	Type         OrderType  `json:"type" validate:"required,oneof=INSTALLATION SERVICE OUTAGE"`
	Operator     string     `json:"operator,omitempty" validate:"max=100"`
	Date         time.Time  `json:"date" validate:"required"`
	TimeSlot     string     `json:"timeSlot,omitempty" validate:"max=20"`
	Notes        string     `json:"notes,omitempty" validate:"max=2000"`
	City         string     `json:"city" validate:"required,max=100"`
	Street       string     `json:"street" validate:"required,max=200"`
	PostalCode   string     `json:"postalCode,omitempty" validate:"max=20"`
	AssignedToID *uuid.UUID `json:"assignedToId,omitempty"`
}

type AssignOrderRequest struct {
	TechnicianID *uuid.UUID `json:"technicianId"`
}

type WorkCodeInput struct {
	Code     string `json:"code" validate:"required,max=50"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=100"`
}

type UsedMaterialInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type CollectedDeviceInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	Category     string `json:"category,omitempty" validate:"max=100"`
	SerialNumber string `json:"serialNumber" validate:"required,max=100"`
}

type CompleteOrderRequest struct {
	Status           OrderStatus            `json:"status" validate:"required,oneof=COMPLETED NOT_COMPLETED"`
	FailureReason    string                 `json:"failureReason,omitempty" validate:"max=100"`
	Notes            string                 `json:"notes,omitempty" validate:"max=2000"`
	WorkCodes        []WorkCodeInput        `json:"workCodes,omitempty" validate:"dive"`
	UsedMaterials    []UsedMaterialInput    `json:"usedMaterials,omitempty" validate:"dive"`
	IssuedDeviceIDs  []uuid.UUID            `json:"issuedDeviceIds,omitempty"`
	CollectedDevices []CollectedDeviceInput `json:"collectedDevices,omitempty" validate:"dive"`
}

type CreateRetryRequest struct {
	Date         time.Time  `json:"date" validate:"required"`
	TimeSlot     string     `json:"timeSlot,omitempty" validate:"max=20"`
	Notes        string     `json:"notes,omitempty" validate:"max=2000"`
	AssignedToID *uuid.UUID `json:"assignedToId,omitempty"`
}

type ReceiveItemInput struct {
	ItemType     StockItemType `json:"itemType" validate:"required,oneof=DEVICE MATERIAL"`
	Category     string        `json:"category,omitempty" validate:"max=100"`
	Name         string        `json:"name" validate:"required,max=200"`
	SerialNumber string        `json:"serialNumber,omitempty" validate:"max=100"`
	Quantity     int           `json:"quantity" validate:"gte=0"`
	Price        float64       `json:"price" validate:"gte=0"`
}

type ReceiveStockRequest struct {
	Items []ReceiveItemInput `json:"items" validate:"required,min=1,dive"`
	Notes string             `json:"notes,omitempty" validate:"max=500"`
}

type TransferStockRequest struct {
	ItemID       uuid.UUID  `json:"itemId" validate:"required"`
	FromHolderID *uuid.UUID `json:"fromHolderId"`
	ToHolderID   *uuid.UUID `json:"toHolderId"`
	Quantity     int        `json:"quantity" validate:"required,gt=0"`
}

type StockQuantityInput struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

type MoveStockRequest struct {
	TechnicianID uuid.UUID            `json:"technicianId" validate:"required"`
	Items        []StockQuantityInput `json:"items" validate:"required,min=1,dive"`
}

type RequestTransferRequest struct {
	ItemID         uuid.UUID `json:"itemId" validate:"required"`
	ToTechnicianID uuid.UUID `json:"toTechnicianId" validate:"required"`
}

type AssignToOrderRequest struct {
	OrderID  uuid.UUID `json:"orderId" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

type ReturnToOperatorRequest struct {
	HistoryIDs []uuid.UUID `json:"historyIds" validate:"required,min=1"`
}

type WriteOffRequest struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
	Reason   string    `json:"reason" validate:"required,max=500"`
}

// Filters

type OrderFilters struct {
	Status       *OrderStatus
	Type         *OrderType
	AssignedToID *uuid.UUID
	Unassigned   bool
	DateFrom     *time.Time
	DateTo       *time.Time
	Search       string
	// SortBy is an API field name (date, orderNumber, status, city); SortOrder is asc or desc
	SortBy    string
	SortOrder string
}

type StockFilters struct {
	ItemType    *StockItemType
	Status      *StockStatus
	HolderID    *uuid.UUID
	CentralOnly bool
	LocationID  *uuid.UUID
	Search      string
}

// ModuleDTO describes a module available to clients
type ModuleDTO struct {
	Code           ModuleCode  `json:"code"`
	Name           string      `json:"name"`
	OrderTypes     []OrderType `json:"orderTypes,omitempty"`
	BillableTypes  []OrderType `json:"billableTypes,omitempty"`
	FailureReasons []string    `json:"failureReasons,omitempty"`
}
