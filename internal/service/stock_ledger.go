package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ledger applies stock movements through a transaction-bound repository.
// Every movement writes one history row per touched warehouse row.
type ledger struct {
	tx      *gorm.DB
	stock   *repository.StockRepository
	actorID uuid.UUID
	now     time.Time
	actions []domain.StockAction
}

func newLedger(tx *gorm.DB, stock *repository.StockRepository, actorID uuid.UUID) *ledger {
	return &ledger{tx: tx, stock: stock, actorID: actorID, now: time.Now().UTC()}
}

func (l *ledger) lockItem(ctx context.Context, id uuid.UUID) (*domain.StockItem, error) {
	item, err := l.stock.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockItemNotFound
		}
		return nil, fmt.Errorf("failed to load stock item: %w", err)
	}
	return item, nil
}

func (l *ledger) record(ctx context.Context, entry *domain.StockHistory) error {
	entry.PerformedByID = l.actorID
	entry.ActionDate = l.now
	if err := l.stock.CreateHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to record stock history: %w", err)
	}
	l.actions = append(l.actions, entry.Action)
	return nil
}

func movementAction(from, to *uuid.UUID) domain.StockAction {
	switch {
	case from == nil:
		return domain.StockActionIssued
	case to == nil:
		return domain.StockActionReturned
	default:
		return domain.StockActionTransfer
	}
}

func heldStatus(holder *uuid.UUID) domain.StockStatus {
	if holder == nil {
		return domain.StockStatusAvailable
	}
	return domain.StockStatusAssigned
}

func sameHolder(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// checkTransferable reports why a device cannot move, or nil
func checkTransferable(item *domain.StockItem) error {
	if item.TransferPending {
		return ErrTransferPending
	}
	if item.OrderID != nil {
		return fmt.Errorf("%w: device is attached to an order", ErrConflict)
	}
	if item.Status != domain.StockStatusAvailable && item.Status != domain.StockStatusAssigned {
		return fmt.Errorf("%w: device is %s", ErrConflict, item.Status)
	}
	return nil
}

// transfer moves quantity of an item from one holder to another. A nil holder is the
// central warehouse. For materials the source row is decremented and the destination
// holder's row for the same name and location is found or created.
func (l *ledger) transfer(ctx context.Context, itemID uuid.UUID, from, to *uuid.UUID, quantity int, notes string) (*domain.StockItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if sameHolder(from, to) {
		return nil, fmt.Errorf("%w: source and destination holder are the same", ErrInvalidInput)
	}

	item, err := l.lockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.HeldBy(from) {
		return nil, fmt.Errorf("%w: item is not held by the source holder", ErrInvalidInput)
	}
	action := movementAction(from, to)

	if item.IsDevice() {
		if quantity != 1 {
			return nil, fmt.Errorf("%w: devices move one at a time", ErrInvalidInput)
		}
		if err := checkTransferable(item); err != nil {
			return nil, err
		}
		item.AssignedToID = to
		item.Status = heldStatus(to)
		if err := l.stock.Update(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to move device: %w", err)
		}
		if err := l.record(ctx, &domain.StockHistory{
			WarehouseItemID: item.ID,
			Action:          action,
			Quantity:        1,
			FromHolderID:    from,
			ToHolderID:      to,
			LocationID:      item.LocationID,
			Notes:           notes,
		}); err != nil {
			return nil, err
		}
		return item, nil
	}

	if item.Status == domain.StockStatusWrittenOff {
		return nil, fmt.Errorf("%w: material row is written off", ErrConflict)
	}
	if item.Quantity < quantity {
		return nil, ErrInsufficientStock
	}

	dest, err := l.stock.FindMaterialRowForUpdate(ctx, item.Name, to, item.LocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find destination row: %w", err)
	}
	if dest == nil {
		dest = &domain.StockItem{
			ItemType:     domain.StockItemMaterial,
			Category:     item.Category,
			Name:         item.Name,
			Quantity:     quantity,
			Price:        item.Price,
			AssignedToID: to,
			LocationID:   item.LocationID,
			Status:       heldStatus(to),
		}
		if err := l.stock.Create(ctx, dest); err != nil {
			return nil, fmt.Errorf("failed to create destination row: %w", err)
		}
	} else {
		dest.Quantity += quantity
		if err := l.stock.Update(ctx, dest); err != nil {
			return nil, fmt.Errorf("failed to update destination row: %w", err)
		}
	}

	item.Quantity -= quantity
	if err := l.stock.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update source row: %w", err)
	}

	if err := l.record(ctx, &domain.StockHistory{
		WarehouseItemID: item.ID,
		Action:          action,
		Quantity:        quantity,
		FromHolderID:    from,
		ToHolderID:      to,
		LocationID:      item.LocationID,
		Notes:           notes,
	}); err != nil {
		return nil, err
	}
	return dest, nil
}

// assignToOrder attaches a device to an order or consumes material from a row.
// A non-nil holder must hold the item.
func (l *ledger) assignToOrder(ctx context.Context, itemID, orderID uuid.UUID, holder *uuid.UUID, quantity int) (*domain.StockItem, error) {
	item, err := l.lockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if holder != nil && !item.HeldBy(holder) {
		return nil, fmt.Errorf("%w: item %s is not held by the technician", ErrInvalidInput, itemID)
	}

	if item.IsDevice() {
		if err := checkTransferable(item); err != nil {
			return nil, err
		}
		item.Status = domain.StockStatusAssignedToOrder
		item.OrderID = &orderID
		quantity = 1
	} else {
		if quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
		}
		if item.Quantity < quantity {
			return nil, ErrInsufficientStock
		}
		item.Quantity -= quantity
	}
	if err := l.stock.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to assign item to order: %w", err)
	}

	if err := l.record(ctx, &domain.StockHistory{
		WarehouseItemID: item.ID,
		Action:          domain.StockActionAssignedToOrder,
		Quantity:        quantity,
		FromHolderID:    item.AssignedToID,
		OrderID:         &orderID,
		LocationID:      item.LocationID,
	}); err != nil {
		return nil, err
	}
	return item, nil
}

// consumeMaterial takes quantity of a material from the holder's rows, oldest first.
// The holder's total must cover the quantity.
func (l *ledger) consumeMaterial(ctx context.Context, holder *uuid.UUID, name string, quantity int, orderID uuid.UUID) error {
	rows, err := l.stock.ListMaterialRowsForUpdate(ctx, holder, name)
	if err != nil {
		return fmt.Errorf("failed to load material rows: %w", err)
	}
	held := 0
	for _, row := range rows {
		held += row.Quantity
	}
	if held < quantity {
		return fmt.Errorf("%w: %s (held %d, reported %d)", ErrInsufficientStock, name, held, quantity)
	}

	remaining := quantity
	for i := range rows {
		if remaining == 0 {
			break
		}
		take := rows[i].Quantity
		if take > remaining {
			take = remaining
		}
		if _, err := l.assignToOrder(ctx, rows[i].ID, orderID, holder, take); err != nil {
			return err
		}
		remaining -= take
	}
	return nil
}

// receive registers incoming stock for holder at location. Devices are new rows keyed by
// a module-unique serial number; materials merge into the holder's row for the name.
func (l *ledger) receive(ctx context.Context, in domain.ReceiveItemInput, holder, location, orderID *uuid.UUID, action domain.StockAction, notes string) (*domain.StockItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}

	var item *domain.StockItem
	quantity := in.Quantity

	switch in.ItemType {
	case domain.StockItemDevice:
		serial := strings.TrimSpace(in.SerialNumber)
		if serial == "" {
			return nil, fmt.Errorf("%w: devices need a serial number", ErrInvalidInput)
		}
		existing, err := l.stock.GetBySerial(ctx, serial)
		if err != nil {
			return nil, fmt.Errorf("failed to check serial number: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSerial, serial)
		}
		quantity = 1
		item = &domain.StockItem{
			ItemType:     domain.StockItemDevice,
			Category:     in.Category,
			Name:         name,
			SerialNumber: &serial,
			Quantity:     1,
			Price:        in.Price,
			AssignedToID: holder,
			LocationID:   location,
			Status:       heldStatus(holder),
		}
		if err := l.stock.Create(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}

	case domain.StockItemMaterial:
		if quantity < 1 {
			return nil, fmt.Errorf("%w: material quantity must be positive", ErrInvalidInput)
		}
		existing, err := l.stock.FindMaterialRowForUpdate(ctx, name, holder, location)
		if err != nil {
			return nil, fmt.Errorf("failed to find material row: %w", err)
		}
		if existing != nil {
			existing.Quantity += quantity
			if in.Price > 0 {
				existing.Price = in.Price
			}
			if err := l.stock.Update(ctx, existing); err != nil {
				return nil, fmt.Errorf("failed to update material row: %w", err)
			}
			item = existing
		} else {
			item = &domain.StockItem{
				ItemType:     domain.StockItemMaterial,
				Category:     in.Category,
				Name:         name,
				Quantity:     quantity,
				Price:        in.Price,
				AssignedToID: holder,
				LocationID:   location,
				Status:       heldStatus(holder),
			}
			if err := l.stock.Create(ctx, item); err != nil {
				return nil, fmt.Errorf("failed to create material row: %w", err)
			}
		}

	default:
		return nil, fmt.Errorf("%w: unknown item type %q", ErrInvalidInput, in.ItemType)
	}

	if err := l.record(ctx, &domain.StockHistory{
		WarehouseItemID: item.ID,
		Action:          action,
		Quantity:        quantity,
		ToHolderID:      holder,
		OrderID:         orderID,
		LocationID:      location,
		Notes:           notes,
	}); err != nil {
		return nil, err
	}
	return item, nil
}
