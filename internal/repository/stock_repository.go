package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockRepository reads and writes the warehouse and warehouse history tables of one module
type StockRepository struct {
	db     *gorm.DB
	module *domain.ModuleDescriptor
}

func NewStockRepository(db *gorm.DB, module *domain.ModuleDescriptor) *StockRepository {
	return &StockRepository{db: db, module: module}
}

// WithTx returns a repository bound to tx
func (r *StockRepository) WithTx(tx *gorm.DB) *StockRepository {
	return &StockRepository{db: tx, module: r.module}
}

// Module returns the module the repository is bound to
func (r *StockRepository) Module() *domain.ModuleDescriptor {
	return r.module
}

func (r *StockRepository) items(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.module.Tables.Warehouse)
}

func (r *StockRepository) history(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.module.Tables.WarehouseHistory)
}

func holderClause(query *gorm.DB, holder *uuid.UUID) *gorm.DB {
	if holder == nil {
		return query.Where("assigned_to_id IS NULL")
	}
	return query.Where("assigned_to_id = ?", *holder)
}

func (r *StockRepository) Create(ctx context.Context, item *domain.StockItem) error {
	return r.items(ctx).Create(item).Error
}

func (r *StockRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StockItem, error) {
	var item domain.StockItem
	if err := r.items(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// GetForUpdate loads a stock row with a row lock for the rest of the transaction
func (r *StockRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.StockItem, error) {
	var item domain.StockItem
	err := r.items(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *StockRepository) Update(ctx context.Context, item *domain.StockItem) error {
	return r.items(ctx).Select("*").Omit("id", "created_at").Updates(item).Error
}

// GetBySerial returns the device with the serial number, or nil when none exists
func (r *StockRepository) GetBySerial(ctx context.Context, serial string) (*domain.StockItem, error) {
	var item domain.StockItem
	err := r.items(ctx).
		Where("item_type = ? AND serial_number = ?", domain.StockItemDevice, serial).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindMaterialRowForUpdate returns the holder's active row for a material at a location,
// or nil when the holder has none.
func (r *StockRepository) FindMaterialRowForUpdate(ctx context.Context, name string, holder, location *uuid.UUID) (*domain.StockItem, error) {
	query := r.items(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_type = ? AND name = ?", domain.StockItemMaterial, name).
		Where("status IN ?", []domain.StockStatus{domain.StockStatusAvailable, domain.StockStatusAssigned})
	query = holderClause(query, holder)
	if location == nil {
		query = query.Where("location_id IS NULL")
	} else {
		query = query.Where("location_id = ?", *location)
	}

	var item domain.StockItem
	err := query.Order("created_at ASC").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListMaterialRowsForUpdate returns every row of a material held by holder, oldest first
func (r *StockRepository) ListMaterialRowsForUpdate(ctx context.Context, holder *uuid.UUID, name string) ([]domain.StockItem, error) {
	var items []domain.StockItem
	query := r.items(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_type = ? AND name = ? AND quantity > 0", domain.StockItemMaterial, name).
		Where("status IN ?", []domain.StockStatus{domain.StockStatusAvailable, domain.StockStatusAssigned})
	err := holderClause(query, holder).Order("created_at ASC").Find(&items).Error
	return items, err
}

// SumForHolder returns the total quantity of a material held by holder (nil is the central warehouse)
func (r *StockRepository) SumForHolder(ctx context.Context, holder *uuid.UUID, name string) (int, error) {
	var total int
	query := r.items(ctx).
		Select("COALESCE(SUM(quantity), 0)").
		Where("item_type = ? AND name = ?", domain.StockItemMaterial, name).
		Where("status IN ?", []domain.StockStatus{domain.StockStatusAvailable, domain.StockStatusAssigned})
	err := holderClause(query, holder).Scan(&total).Error
	return total, err
}

// List returns a page of stock rows matching filters
func (r *StockRepository) List(ctx context.Context, page, pageSize int, filters *domain.StockFilters) ([]domain.StockItem, int64, error) {
	var items []domain.StockItem
	var total int64

	query := ApplyLocationFilter(ctx, r.applyFilters(r.items(ctx), filters), "location_id")
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("item_type ASC").
		Order("name ASC").
		Order("created_at ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}

// ListAll returns every stock row matching filters
func (r *StockRepository) ListAll(ctx context.Context, filters *domain.StockFilters) ([]domain.StockItem, error) {
	var items []domain.StockItem
	err := r.applyFilters(r.items(ctx), filters).
		Order("item_type ASC").
		Order("name ASC").
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// ListByOrder returns the devices attached to an order
func (r *StockRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.StockItem, error) {
	var items []domain.StockItem
	err := r.items(ctx).
		Where("order_id = ?", orderID).
		Order("name ASC").
		Find(&items).Error
	return items, err
}

// ListPendingTransfersTo returns devices offered to a technician
func (r *StockRepository) ListPendingTransfersTo(ctx context.Context, technicianID uuid.UUID) ([]domain.StockItem, error) {
	var items []domain.StockItem
	err := r.items(ctx).
		Where("transfer_pending = ? AND transfer_to_id = ?", true, technicianID).
		Order("updated_at ASC").
		Find(&items).Error
	return items, err
}

func (r *StockRepository) CreateHistory(ctx context.Context, entry *domain.StockHistory) error {
	if entry.ActionDate.IsZero() {
		entry.ActionDate = time.Now().UTC()
	}
	return r.history(ctx).Create(entry).Error
}

// ListHistoryForUpdate loads history entries by id with row locks
func (r *StockRepository) ListHistoryForUpdate(ctx context.Context, ids []uuid.UUID) ([]domain.StockHistory, error) {
	var entries []domain.StockHistory
	if len(ids) == 0 {
		return entries, nil
	}
	err := r.history(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&entries).Error
	return entries, err
}

// MarkHistoryReturned stamps the returned-to-operator time of a history entry
func (r *StockRepository) MarkHistoryReturned(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.history(ctx).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"returned_to_operator_at": at,
			"updated_at":              at,
		}).Error
}

// ListHistoryForItem returns the movements of one stock row, oldest first
func (r *StockRepository) ListHistoryForItem(ctx context.Context, itemID uuid.UUID) ([]domain.StockHistory, error) {
	var entries []domain.StockHistory
	err := r.history(ctx).
		Where("warehouse_item_id = ?", itemID).
		Order("action_date ASC").
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// ListHistoryByAction returns movements of the given action within [from, to)
func (r *StockRepository) ListHistoryByAction(ctx context.Context, action domain.StockAction, from, to time.Time) ([]domain.StockHistory, error) {
	var entries []domain.StockHistory
	err := r.history(ctx).
		Where("action = ?", action).
		Where("action_date >= ? AND action_date < ?", from, to).
		Order("action_date ASC").
		Find(&entries).Error
	return entries, err
}

// ListReturnedToOperator returns collected devices stamped as returned within [from, to)
func (r *StockRepository) ListReturnedToOperator(ctx context.Context, from, to time.Time) ([]domain.StockHistory, error) {
	var entries []domain.StockHistory
	err := r.history(ctx).
		Where("returned_to_operator_at >= ? AND returned_to_operator_at < ?", from, to).
		Order("returned_to_operator_at ASC").
		Find(&entries).Error
	return entries, err
}

// GetByIDs loads stock rows keyed by id
func (r *StockRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.StockItem, error) {
	result := make(map[uuid.UUID]domain.StockItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var items []domain.StockItem
	if err := r.items(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

func (r *StockRepository) applyFilters(query *gorm.DB, filters *domain.StockFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.ItemType != nil {
		query = query.Where("item_type = ?", *filters.ItemType)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.HolderID != nil {
		query = query.Where("assigned_to_id = ?", *filters.HolderID)
	} else if filters.CentralOnly {
		query = query.Where("assigned_to_id IS NULL")
	}
	if filters.LocationID != nil {
		query = query.Where("location_id = ?", *filters.LocationID)
	}
	return ApplySearch(query, filters.Search, "name", "serial_number", "category")
}
