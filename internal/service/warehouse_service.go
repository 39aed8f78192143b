package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WarehouseService is the stock ledger of one module
type WarehouseService struct {
	stockRepo  *repository.StockRepository
	orderRepo  *repository.OrderRepository
	userRepo   *repository.UserRepository
	accessRepo *repository.ModuleAccessRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger
	db         *gorm.DB
}

func NewWarehouseService(
	stockRepo *repository.StockRepository,
	orderRepo *repository.OrderRepository,
	userRepo *repository.UserRepository,
	accessRepo *repository.ModuleAccessRepository,
	metrics *metrics.Metrics,
	logger *zap.Logger,
	db *gorm.DB,
) *WarehouseService {
	return &WarehouseService{
		stockRepo:  stockRepo,
		orderRepo:  orderRepo,
		userRepo:   userRepo,
		accessRepo: accessRepo,
		metrics:    metrics,
		logger:     logger,
		db:         db,
	}
}

// Module returns the module the ledger serves
func (s *WarehouseService) Module() *domain.ModuleDescriptor {
	return s.stockRepo.Module()
}

// inTx runs fn with a ledger bound to a new transaction and records metrics after commit
func (s *WarehouseService) inTx(ctx context.Context, fn func(l *ledger) error) error {
	var l *ledger
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l = newLedger(tx, s.stockRepo.WithTx(tx), performerID(ctx))
		return fn(l)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.RecordStockRejection(string(s.Module().Code))
		}
		return err
	}
	for _, action := range l.actions {
		s.metrics.RecordStockMovement(string(s.Module().Code), string(action))
	}
	return nil
}

// Transfer moves stock between holders (nil is the central warehouse)
func (s *WarehouseService) Transfer(ctx context.Context, req *domain.TransferStockRequest) (*domain.StockItemDTO, error) {
	if req.ToHolderID != nil {
		if err := s.checkTechnician(ctx, *req.ToHolderID); err != nil {
			return nil, err
		}
	}
	if err := s.checkItemLocation(ctx, req.ItemID); err != nil {
		return nil, err
	}

	var moved *domain.StockItem
	err := s.inTx(ctx, func(l *ledger) error {
		var err error
		moved, err = l.transfer(ctx, req.ItemID, req.FromHolderID, req.ToHolderID, req.Quantity, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock transferred",
		zap.String("module", string(s.Module().Code)),
		zap.String("item_id", req.ItemID.String()),
		zap.Int("quantity", req.Quantity))

	dto := mapper.ToStockItemDTO(moved)
	return &dto, nil
}

// AssignToOrder attaches a device to an order, or consumes quantity of a material row for it
func (s *WarehouseService) AssignToOrder(ctx context.Context, itemID, orderID uuid.UUID, quantity int) (*domain.StockItemDTO, error) {
	var item *domain.StockItem
	err := s.inTx(ctx, func(l *ledger) error {
		order, err := s.orderRepo.WithTx(l.tx).GetForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", ErrConflict, order.OrderNumber, order.Status)
		}
		item, err = l.assignToOrder(ctx, itemID, order.ID, nil, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	dto := mapper.ToStockItemDTO(item)
	return &dto, nil
}

// SumStockForHolder returns the quantity of a material held by holder (nil is the central warehouse)
func (s *WarehouseService) SumStockForHolder(ctx context.Context, holder *uuid.UUID, materialName string) (*domain.StockSumDTO, error) {
	total, err := s.stockRepo.SumForHolder(ctx, holder, materialName)
	if err != nil {
		return nil, fmt.Errorf("failed to sum stock: %w", err)
	}
	return &domain.StockSumDTO{HolderID: holder, MaterialName: materialName, Quantity: total}, nil
}

// ReturnToOperator marks the devices behind history entries as returned to the operator.
// Entries already returned are counted and left unchanged.
func (s *WarehouseService) ReturnToOperator(ctx context.Context, historyIDs []uuid.UUID) (*domain.ReturnToOperatorResult, error) {
	ids := dedupeIDs(historyIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no history entries given", ErrInvalidInput)
	}

	result := &domain.ReturnToOperatorResult{}
	err := s.inTx(ctx, func(l *ledger) error {
		entries, err := l.stock.ListHistoryForUpdate(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		if len(entries) != len(ids) {
			return fmt.Errorf("%w: unknown history entry", ErrNotFound)
		}

		for i := range entries {
			entry := &entries[i]
			if entry.ReturnedToOperatorAt != nil {
				result.AlreadyReturned++
				continue
			}
			item, err := l.lockItem(ctx, entry.WarehouseItemID)
			if err != nil {
				return err
			}
			if !item.IsDevice() {
				return fmt.Errorf("%w: only devices are returned to the operator", ErrInvalidInput)
			}
			if err := l.stock.MarkHistoryReturned(ctx, entry.ID, l.now); err != nil {
				return fmt.Errorf("failed to stamp history: %w", err)
			}
			if item.Status != domain.StockStatusReturnedToOperator {
				holder := item.AssignedToID
				item.Status = domain.StockStatusReturnedToOperator
				item.TransferPending = false
				item.TransferToID = nil
				if err := l.stock.Update(ctx, item); err != nil {
					return fmt.Errorf("failed to update device: %w", err)
				}
				if err := l.record(ctx, &domain.StockHistory{
					WarehouseItemID: item.ID,
					Action:          domain.StockActionReturnedToOperator,
					Quantity:        1,
					FromHolderID:    holder,
					LocationID:      item.LocationID,
				}); err != nil {
					return err
				}
			}
			result.Returned++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("devices returned to operator",
		zap.String("module", string(s.Module().Code)),
		zap.Int("returned", result.Returned),
		zap.Int("already_returned", result.AlreadyReturned))
	return result, nil
}

// Receive registers incoming stock into the central warehouse at the active location
func (s *WarehouseService) Receive(ctx context.Context, req *domain.ReceiveStockRequest) ([]domain.StockItemDTO, error) {
	caps, err := capabilities(ctx)
	if err != nil {
		return nil, err
	}
	location, err := caps.RequireLocation()
	if err != nil {
		return nil, err
	}

	items := make([]domain.StockItem, 0, len(req.Items))
	err = s.inTx(ctx, func(l *ledger) error {
		for _, in := range req.Items {
			item, err := l.receive(ctx, in, nil, &location, nil, domain.StockActionReceived, req.Notes)
			if err != nil {
				return err
			}
			items = append(items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock received",
		zap.String("module", string(s.Module().Code)),
		zap.String("location_id", location.String()),
		zap.Int("rows", len(items)))
	return mapper.ToStockItemDTOs(items), nil
}

// Issue moves stock from the central warehouse to a technician
func (s *WarehouseService) Issue(ctx context.Context, req *domain.MoveStockRequest) ([]domain.StockItemDTO, error) {
	if err := s.checkTechnician(ctx, req.TechnicianID); err != nil {
		return nil, err
	}
	technician := req.TechnicianID
	return s.moveMany(ctx, req.Items, nil, &technician)
}

// ReturnFromTechnician moves stock from a technician back to the central warehouse
func (s *WarehouseService) ReturnFromTechnician(ctx context.Context, req *domain.MoveStockRequest) ([]domain.StockItemDTO, error) {
	technician := req.TechnicianID
	return s.moveMany(ctx, req.Items, &technician, nil)
}

func (s *WarehouseService) moveMany(ctx context.Context, inputs []domain.StockQuantityInput, from, to *uuid.UUID) ([]domain.StockItemDTO, error) {
	for _, in := range inputs {
		if err := s.checkItemLocation(ctx, in.ItemID); err != nil {
			return nil, err
		}
	}

	moved := make([]domain.StockItem, 0, len(inputs))
	err := s.inTx(ctx, func(l *ledger) error {
		for _, in := range inputs {
			item, err := l.transfer(ctx, in.ItemID, from, to, in.Quantity, "")
			if err != nil {
				return err
			}
			moved = append(moved, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mapper.ToStockItemDTOs(moved), nil
}

// RequestTransfer offers a device held by the current technician to another technician
func (s *WarehouseService) RequestTransfer(ctx context.Context, req *domain.RequestTransferRequest) (*domain.StockItemDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if req.ToTechnicianID == user.UserID {
		return nil, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidInput)
	}
	if err := s.checkTechnician(ctx, req.ToTechnicianID); err != nil {
		return nil, err
	}

	var item *domain.StockItem
	err = s.inTx(ctx, func(l *ledger) error {
		var err error
		item, err = l.lockItem(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if !item.IsDevice() {
			return fmt.Errorf("%w: only devices can be offered", ErrInvalidInput)
		}
		if !item.HeldBy(&user.UserID) {
			return ErrForbidden
		}
		if err := checkTransferable(item); err != nil {
			return err
		}
		to := req.ToTechnicianID
		item.TransferPending = true
		item.TransferToID = &to
		return l.stock.Update(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	dto := mapper.ToStockItemDTO(item)
	return &dto, nil
}

// ConfirmTransfer accepts a pending offer; the device moves to the current technician
func (s *WarehouseService) ConfirmTransfer(ctx context.Context, itemID uuid.UUID) (*domain.StockItemDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	var item *domain.StockItem
	err = s.inTx(ctx, func(l *ledger) error {
		pending, err := l.lockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !pending.TransferPending || pending.TransferToID == nil {
			return fmt.Errorf("%w: no pending transfer", ErrConflict)
		}
		if *pending.TransferToID != user.UserID {
			return ErrForbidden
		}
		pending.TransferPending = false
		pending.TransferToID = nil
		if err := l.stock.Update(ctx, pending); err != nil {
			return fmt.Errorf("failed to clear transfer: %w", err)
		}
		to := user.UserID
		item, err = l.transfer(ctx, itemID, pending.AssignedToID, &to, 1, "transfer confirmed")
		return err
	})
	if err != nil {
		return nil, err
	}

	dto := mapper.ToStockItemDTO(item)
	return &dto, nil
}

// RejectTransfer clears a pending offer. The recipient rejects it or the holder withdraws it.
func (s *WarehouseService) RejectTransfer(ctx context.Context, itemID uuid.UUID) (*domain.StockItemDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	var item *domain.StockItem
	err = s.inTx(ctx, func(l *ledger) error {
		var err error
		item, err = l.lockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.TransferPending || item.TransferToID == nil {
			return fmt.Errorf("%w: no pending transfer", ErrConflict)
		}
		if *item.TransferToID != user.UserID && !item.HeldBy(&user.UserID) && !user.IsStaff() {
			return ErrForbidden
		}
		item.TransferPending = false
		item.TransferToID = nil
		return l.stock.Update(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	dto := mapper.ToStockItemDTO(item)
	return &dto, nil
}

// PendingTransfers returns the devices offered to the current technician
func (s *WarehouseService) PendingTransfers(ctx context.Context) ([]domain.StockItemDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.stockRepo.ListPendingTransfersTo(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transfers: %w", err)
	}
	return mapper.ToStockItemDTOs(items), nil
}

// WriteOff removes stock from the ledger
func (s *WarehouseService) WriteOff(ctx context.Context, req *domain.WriteOffRequest) (*domain.StockItemDTO, error) {
	if err := s.checkItemLocation(ctx, req.ItemID); err != nil {
		return nil, err
	}

	var item *domain.StockItem
	err := s.inTx(ctx, func(l *ledger) error {
		var err error
		item, err = l.lockItem(ctx, req.ItemID)
		if err != nil {
			return err
		}
		quantity := req.Quantity
		if item.IsDevice() {
			if err := checkTransferable(item); err != nil {
				return err
			}
			quantity = 1
			item.Status = domain.StockStatusWrittenOff
		} else {
			if item.Quantity < quantity {
				return ErrInsufficientStock
			}
			item.Quantity -= quantity
		}
		if err := l.stock.Update(ctx, item); err != nil {
			return fmt.Errorf("failed to write off: %w", err)
		}
		return l.record(ctx, &domain.StockHistory{
			WarehouseItemID: item.ID,
			Action:          domain.StockActionWrittenOff,
			Quantity:        quantity,
			FromHolderID:    item.AssignedToID,
			LocationID:      item.LocationID,
			Notes:           req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock written off",
		zap.String("module", string(s.Module().Code)),
		zap.String("item_id", req.ItemID.String()),
		zap.Int("quantity", req.Quantity),
		zap.String("reason", req.Reason))

	dto := mapper.ToStockItemDTO(item)
	return &dto, nil
}

// List returns a page of stock rows
func (s *WarehouseService) List(ctx context.Context, page, pageSize int, filters *domain.StockFilters) (*domain.PaginatedResponse, error) {
	page, pageSize = repository.NormalizePage(page, pageSize)
	items, total, err := s.stockRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	return paginate(mapper.ToStockItemDTOs(items), total, page, pageSize), nil
}

// TechnicianStock returns what a technician holds. Technicians may only view their own stock.
func (s *WarehouseService) TechnicianStock(ctx context.Context, technicianID uuid.UUID) ([]domain.StockItemDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if user.HasRole(domain.RoleTechnician) && user.UserID != technicianID {
		return nil, ErrForbidden
	}

	status := domain.StockStatusAssigned
	items, err := s.stockRepo.ListAll(ctx, &domain.StockFilters{HolderID: &technicianID, Status: &status})
	if err != nil {
		return nil, fmt.Errorf("failed to list technician stock: %w", err)
	}

	held := items[:0]
	for _, item := range items {
		if item.IsDevice() || item.Quantity > 0 {
			held = append(held, item)
		}
	}
	return mapper.ToStockItemDTOs(held), nil
}

// ItemHistory returns the movements of a stock row
func (s *WarehouseService) ItemHistory(ctx context.Context, itemID uuid.UUID) ([]domain.StockHistoryDTO, error) {
	if _, err := s.stockRepo.GetByID(ctx, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockItemNotFound
		}
		return nil, fmt.Errorf("failed to get stock item: %w", err)
	}
	entries, err := s.stockRepo.ListHistoryForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return mapper.ToStockHistoryDTOs(entries), nil
}

// CollectedDevices returns devices collected from clients within [from, to)
func (s *WarehouseService) CollectedDevices(ctx context.Context, from, to time.Time) ([]domain.StockHistoryDTO, error) {
	entries, err := s.stockRepo.ListHistoryByAction(ctx, domain.StockActionCollected, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list collected devices: %w", err)
	}
	return mapper.ToStockHistoryDTOs(entries), nil
}

// checkTechnician ensures id is an unblocked technician with an active sub-profile in the module
func (s *WarehouseService) checkTechnician(ctx context.Context, id uuid.UUID) error {
	return checkModuleTechnician(ctx, s.userRepo, s.accessRepo, s.Module().Code, id)
}

// checkItemLocation keeps warehousemen on rows of their active location
func (s *WarehouseService) checkItemLocation(ctx context.Context, itemID uuid.UUID) error {
	caps, ok := auth.CapabilitiesFromContext(ctx)
	if !ok || !caps.IsWarehouseman {
		return nil
	}
	item, err := s.stockRepo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStockItemNotFound
		}
		return fmt.Errorf("failed to get stock item: %w", err)
	}
	if item.LocationID != nil && caps.ActiveLocationID != nil && *item.LocationID != *caps.ActiveLocationID {
		return ErrForbidden
	}
	return nil
}
