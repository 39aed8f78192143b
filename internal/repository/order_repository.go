package repository

import (
	"context"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository reads and writes the order tables of one module
type OrderRepository struct {
	db     *gorm.DB
	module *domain.ModuleDescriptor
}

func NewOrderRepository(db *gorm.DB, module *domain.ModuleDescriptor) *OrderRepository {
	return &OrderRepository{db: db, module: module}
}

// WithTx returns a repository bound to tx
func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx, module: r.module}
}

// Module returns the module the repository is bound to
func (r *OrderRepository) Module() *domain.ModuleDescriptor {
	return r.module
}

func (r *OrderRepository) orders(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.module.Tables.Orders)
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.orders(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	if err := r.orders(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetForUpdate loads an order with a row lock for the rest of the transaction
func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.orders(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	return r.orders(ctx).Select("*").Omit("id", "created_at").Updates(order).Error
}

// orderSortFields maps API sort fields to columns
var orderSortFields = map[string]string{
	"date":        "date",
	"orderNumber": "order_number",
	"status":      "status",
	"city":        "city",
	"updatedAt":   "updated_at",
}

// List returns a page of orders, newest date first unless filters choose another sort
func (r *OrderRepository) List(ctx context.Context, page, pageSize int, filters *domain.OrderFilters) ([]domain.Order, int64, error) {
	var orders []domain.Order
	var total int64

	query := r.applyFilters(r.orders(ctx), filters)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sort := SortConfig{}
	if filters != nil {
		sort = SortConfig{Field: filters.SortBy, Order: ParseSortOrder(filters.SortOrder)}
	}

	offset := (page - 1) * pageSize
	err := query.
		Order(BuildOrderClause(sort, orderSortFields, "date")).
		Order("order_number ASC").
		Order("attempt_number DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// ListAll returns every order matching filters, oldest first
func (r *OrderRepository) ListAll(ctx context.Context, filters *domain.OrderFilters) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.applyFilters(r.orders(ctx), filters).
		Order("date ASC").
		Order("order_number ASC").
		Order("attempt_number ASC").
		Find(&orders).Error
	return orders, err
}

// ListAttempts returns every attempt of a logical job in attempt order
func (r *OrderRepository) ListAttempts(ctx context.Context, orderNumber string) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.orders(ctx).
		Where("order_number = ?", orderNumber).
		Order("attempt_number ASC").
		Find(&orders).Error
	return orders, err
}

// HasRetry reports whether a retry already references the attempt
func (r *OrderRepository) HasRetry(ctx context.Context, previousOrderID uuid.UUID) (bool, error) {
	var count int64
	err := r.orders(ctx).Where("previous_order_id = ?", previousOrderID).Count(&count).Error
	return count > 0, err
}

// ListCompletedForTechnician returns the completed orders of a technician dated within [from, to)
func (r *OrderRepository) ListCompletedForTechnician(ctx context.Context, technicianID uuid.UUID, from, to time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.orders(ctx).
		Where("assigned_to_id = ? AND status = ?", technicianID, domain.OrderStatusCompleted).
		Where("date >= ? AND date < ?", from, to).
		Order("date ASC").
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) CreateWorkCodes(ctx context.Context, codes []domain.OrderWorkCode) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Table(r.module.Tables.OrderWorkCodes).Create(&codes).Error
}

func (r *OrderRepository) ListWorkCodes(ctx context.Context, orderID uuid.UUID) ([]domain.OrderWorkCode, error) {
	var codes []domain.OrderWorkCode
	err := r.db.WithContext(ctx).Table(r.module.Tables.OrderWorkCodes).
		Where("order_id = ?", orderID).
		Order("code ASC").
		Find(&codes).Error
	return codes, err
}

func (r *OrderRepository) CreateSettlements(ctx context.Context, settlements []domain.OrderSettlement) error {
	if len(settlements) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Table(r.module.Tables.OrderSettlements).Create(&settlements).Error
}

func (r *OrderRepository) ListSettlements(ctx context.Context, orderID uuid.UUID) ([]domain.OrderSettlement, error) {
	var settlements []domain.OrderSettlement
	err := r.db.WithContext(ctx).Table(r.module.Tables.OrderSettlements).
		Where("order_id = ?", orderID).
		Order("rate_code ASC").
		Find(&settlements).Error
	return settlements, err
}

// ListSettlementsForOrders returns the settlements of many orders
func (r *OrderRepository) ListSettlementsForOrders(ctx context.Context, orderIDs []uuid.UUID) ([]domain.OrderSettlement, error) {
	var settlements []domain.OrderSettlement
	if len(orderIDs) == 0 {
		return settlements, nil
	}
	err := r.db.WithContext(ctx).Table(r.module.Tables.OrderSettlements).
		Where("order_id IN ?", orderIDs).
		Order("rate_code ASC").
		Find(&settlements).Error
	return settlements, err
}

func (r *OrderRepository) applyFilters(query *gorm.DB, filters *domain.OrderFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.AssignedToID != nil {
		query = query.Where("assigned_to_id = ?", *filters.AssignedToID)
	} else if filters.Unassigned {
		query = query.Where("assigned_to_id IS NULL")
	}
	if filters.DateFrom != nil {
		query = query.Where("date >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("date < ?", *filters.DateTo)
	}
	return ApplySearch(query, filters.Search, "order_number", "city", "street", "postal_code")
}
