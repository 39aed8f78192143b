package domain

import (
	"time"

	"github.com/google/uuid"
)

// The models in this file live in per-module tables. They carry no index tags or
// associations; the table is chosen at query time from the module descriptor.

// OrderType represents the kind of field work
type OrderType string

const (
	OrderTypeInstallation OrderType = "INSTALLATION"
	OrderTypeService      OrderType = "SERVICE"
	OrderTypeOutage       OrderType = "OUTAGE"
)

// OrderStatus represents the lifecycle state of one attempt
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusAssigned     OrderStatus = "ASSIGNED"
	OrderStatusCompleted    OrderStatus = "COMPLETED"
	OrderStatusNotCompleted OrderStatus = "NOT_COMPLETED"
)

// IsTerminal reports whether the attempt is finished
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusNotCompleted
}

// Order is one attempt of a field job
type Order struct {
	BaseModel
	OrderNumber     string      `gorm:"type:varchar(100);not null;column:order_number"`
	Type            OrderType   `gorm:"type:varchar(20);not null"`
	Status          OrderStatus `gorm:"type:varchar(20);not null"`
	Operator        string      `gorm:"type:varchar(100)"`
	AssignedToID    *uuid.UUID  `gorm:"type:uuid;column:assigned_to_id"`
	Date            time.Time   `gorm:"not null"`
	TimeSlot        string      `gorm:"type:varchar(20);column:time_slot"`
	FailureReason   *string     `gorm:"type:varchar(100);column:failure_reason"`
	Notes           string      `gorm:"type:text"`
	AttemptNumber   int         `gorm:"not null;default:1;column:attempt_number"`
	PreviousOrderID *uuid.UUID  `gorm:"type:uuid;column:previous_order_id"`
	City            string      `gorm:"type:varchar(100)"`
	Street          string      `gorm:"type:varchar(200)"`
	PostalCode      string      `gorm:"type:varchar(20);column:postal_code"`
	Latitude        *float64
	Longitude       *float64
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	CreatedByID     uuid.UUID  `gorm:"type:uuid;not null;column:created_by_id"`
}

// Address returns the single-line postal address of the order
func (o *Order) Address() string {
	addr := o.Street
	if o.PostalCode != "" || o.City != "" {
		if addr != "" {
			addr += ", "
		}
		addr += o.PostalCode
		if o.PostalCode != "" && o.City != "" {
			addr += " "
		}
		addr += o.City
	}
	return addr
}

// OrderWorkCode is a work code reported on completion
type OrderWorkCode struct {
	BaseModel
	OrderID  uuid.UUID `gorm:"type:uuid;not null;column:order_id"`
	Code     string    `gorm:"type:varchar(50);not null"`
	Quantity int       `gorm:"not null;default:1"`
}

// OrderSettlement is a billable entry derived from the billing draft
type OrderSettlement struct {
	BaseModel
	OrderID  uuid.UUID `gorm:"type:uuid;not null;column:order_id"`
	RateCode string    `gorm:"type:varchar(50);not null;column:rate_code"`
	Quantity int       `gorm:"not null;default:1"`
	Amount   float64   `gorm:"type:decimal(12,2);not null;default:0"`
}

// RateDefinition is the price of one work code
type RateDefinition struct {
	BaseModel
	Code        string  `gorm:"type:varchar(50);not null"`
	Description string  `gorm:"type:varchar(255)"`
	Amount      float64 `gorm:"type:decimal(12,2);not null;default:0"`
}

// MaterialDefinition is a catalog entry for a fungible material
type MaterialDefinition struct {
	BaseModel
	Name  string  `gorm:"type:varchar(200);not null"`
	Index string  `gorm:"type:varchar(50);column:material_index"`
	Unit  string  `gorm:"type:varchar(20);not null;default:'szt'"`
	Price float64 `gorm:"type:decimal(12,2);not null;default:0"`
}

// StockItemType distinguishes serialized devices from fungible materials
type StockItemType string

const (
	StockItemDevice   StockItemType = "DEVICE"
	StockItemMaterial StockItemType = "MATERIAL"
)

// StockStatus is the state of a warehouse row
type StockStatus string

const (
	StockStatusAvailable          StockStatus = "AVAILABLE"
	StockStatusAssigned           StockStatus = "ASSIGNED"
	StockStatusAssignedToOrder    StockStatus = "ASSIGNED_TO_ORDER"
	StockStatusReturnedToOperator StockStatus = "RETURNED_TO_OPERATOR"
	StockStatusWrittenOff         StockStatus = "WRITTEN_OFF"
)

// StockItem is one device or a quantity of material held by the central warehouse
// (AssignedToID nil) or by a technician.
type StockItem struct {
	BaseModel
	ItemType        StockItemType `gorm:"type:varchar(20);not null;column:item_type"`
	Category        string        `gorm:"type:varchar(100)"`
	Name            string        `gorm:"type:varchar(200);not null"`
	SerialNumber    *string       `gorm:"type:varchar(100);column:serial_number"`
	Quantity        int           `gorm:"not null;default:0"`
	Price           float64       `gorm:"type:decimal(12,2);not null;default:0"`
	AssignedToID    *uuid.UUID    `gorm:"type:uuid;column:assigned_to_id"`
	LocationID      *uuid.UUID    `gorm:"type:uuid;column:location_id"`
	OrderID         *uuid.UUID    `gorm:"type:uuid;column:order_id"`
	Status          StockStatus   `gorm:"type:varchar(30);not null"`
	TransferPending bool          `gorm:"not null;default:false;column:transfer_pending"`
	TransferToID    *uuid.UUID    `gorm:"type:uuid;column:transfer_to_id"`
}

// IsDevice reports whether the row is a serialized device
func (s *StockItem) IsDevice() bool {
	return s.ItemType == StockItemDevice
}

// HeldBy reports whether the row is held by holder (nil is the central warehouse)
func (s *StockItem) HeldBy(holder *uuid.UUID) bool {
	if s.AssignedToID == nil || holder == nil {
		return s.AssignedToID == nil && holder == nil
	}
	return *s.AssignedToID == *holder
}

// StockAction is the kind of movement recorded in the stock history
type StockAction string

const (
	StockActionReceived           StockAction = "RECEIVED"
	StockActionIssued             StockAction = "ISSUED"
	StockActionReturned           StockAction = "RETURNED"
	StockActionTransfer           StockAction = "TRANSFER"
	StockActionAssignedToOrder    StockAction = "ASSIGNED_TO_ORDER"
	StockActionCollected          StockAction = "COLLECTED_FROM_CLIENT"
	StockActionReturnedToOperator StockAction = "RETURNED_TO_OPERATOR"
	StockActionWrittenOff         StockAction = "WRITTEN_OFF"
)

// StockHistory is one movement of the stock ledger
type StockHistory struct {
	BaseModel
	WarehouseItemID      uuid.UUID   `gorm:"type:uuid;not null;column:warehouse_item_id"`
	Action               StockAction `gorm:"type:varchar(30);not null"`
	Quantity             int         `gorm:"not null;default:1"`
	FromHolderID         *uuid.UUID  `gorm:"type:uuid;column:from_holder_id"`
	ToHolderID           *uuid.UUID  `gorm:"type:uuid;column:to_holder_id"`
	OrderID              *uuid.UUID  `gorm:"type:uuid;column:order_id"`
	LocationID           *uuid.UUID  `gorm:"type:uuid;column:location_id"`
	PerformedByID        uuid.UUID   `gorm:"type:uuid;not null;column:performed_by_id"`
	ReturnedToOperatorAt *time.Time  `gorm:"column:returned_to_operator_at"`
	Notes                string      `gorm:"type:text"`
	ActionDate           time.Time   `gorm:"not null;column:action_date"`
}
