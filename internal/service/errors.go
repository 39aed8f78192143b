package service

import (
	"errors"

	"github.com/fieldcrm/crm-api/internal/auth"
)

// Common service errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when there's a conflict (e.g., duplicate)
	ErrConflict = errors.New("resource conflict")

	// ErrUnauthorized is returned when user is not authenticated
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the user lacks the role, module or location for an action
	ErrForbidden = auth.ErrForbidden

	// ErrLocationRequired is returned when a write needs an active location
	ErrLocationRequired = auth.ErrLocationRequired

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrOrderNotFound is returned when an order is not found in the module
	ErrOrderNotFound = errors.New("order not found")

	// ErrStockItemNotFound is returned when a warehouse row is not found in the module
	ErrStockItemNotFound = errors.New("stock item not found")

	// ErrInsufficientStock is returned when a move would drive a holder's quantity negative
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidTransition is returned when an order cannot move to the requested status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidBillingDraft is returned when reported work codes do not form a valid billing draft
	ErrInvalidBillingDraft = errors.New("invalid billing draft")

	// ErrRetryExists is returned when a retry was already created for an attempt
	ErrRetryExists = errors.New("retry already created for this attempt")

	// ErrDuplicateSerial is returned when a device serial number is already registered
	ErrDuplicateSerial = errors.New("serial number already registered")

	// ErrTransferPending is returned when a device has an unresolved transfer offer
	ErrTransferPending = errors.New("item has a pending transfer")
)
