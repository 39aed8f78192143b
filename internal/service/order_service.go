package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/billing"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/geocode"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// validOrderTransitions defines the allowed status transitions of one attempt
var validOrderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusPending,
		domain.OrderStatusAssigned,
	},
	domain.OrderStatusAssigned: {
		domain.OrderStatusPending,
		domain.OrderStatusAssigned,
		domain.OrderStatusCompleted,
		domain.OrderStatusNotCompleted,
	},
	domain.OrderStatusCompleted:    {},
	domain.OrderStatusNotCompleted: {},
}

// Geocoder resolves postal addresses to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, addr geocode.Address) (*geocode.Point, error)
}

// OrderService manages the order lifecycle of one module
type OrderService struct {
	orderRepo    *repository.OrderRepository
	stockRepo    *repository.StockRepository
	rateRepo     *repository.RateRepository
	userRepo     *repository.UserRepository
	accessRepo   *repository.ModuleAccessRepository
	settingsRepo *repository.TechnicianSettingsRepository
	geocoder     Geocoder
	metrics      *metrics.Metrics
	logger       *zap.Logger
	db           *gorm.DB
}

func NewOrderService(
	orderRepo *repository.OrderRepository,
	stockRepo *repository.StockRepository,
	rateRepo *repository.RateRepository,
	userRepo *repository.UserRepository,
	accessRepo *repository.ModuleAccessRepository,
	settingsRepo *repository.TechnicianSettingsRepository,
	geocoder Geocoder,
	metrics *metrics.Metrics,
	logger *zap.Logger,
	db *gorm.DB,
) *OrderService {
	return &OrderService{
		orderRepo:    orderRepo,
		stockRepo:    stockRepo,
		rateRepo:     rateRepo,
		userRepo:     userRepo,
		accessRepo:   accessRepo,
		settingsRepo: settingsRepo,
		geocoder:     geocoder,
		metrics:      metrics,
		logger:       logger,
		db:           db,
	}
}

// Module returns the module the service operates on
func (s *OrderService) Module() *domain.ModuleDescriptor {
	return s.orderRepo.Module()
}

// Create registers a new order. It starts ASSIGNED when a technician is given.
func (s *OrderService) Create(ctx context.Context, req *domain.CreateOrderRequest) (*domain.OrderDTO, error) {
	if !s.Module().HasOrderType(req.Type) {
		return nil, fmt.Errorf("%w: order type %s is not used by %s", ErrInvalidInput, req.Type, s.Module().Name)
	}
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		return nil, fmt.Errorf("%w: order number is required", ErrInvalidInput)
	}

	attempts, err := s.orderRepo.ListAttempts(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to check order number: %w", err)
	}
	if len(attempts) > 0 {
		return nil, fmt.Errorf("%w: order %s already exists", ErrConflict, number)
	}

	order := &domain.Order{
		OrderNumber:   number,
		Type:          req.Type,
		Status:        domain.OrderStatusPending,
		Operator:      strings.TrimSpace(req.Operator),
		Date:          dateOnly(req.Date),
		TimeSlot:      req.TimeSlot,
		Notes:         req.Notes,
		AttemptNumber: 1,
		City:          strings.TrimSpace(req.City),
		Street:        strings.TrimSpace(req.Street),
		PostalCode:    strings.TrimSpace(req.PostalCode),
		CreatedByID:   performerID(ctx),
	}
	if req.AssignedToID != nil {
		if err := s.checkTechnician(ctx, *req.AssignedToID); err != nil {
			return nil, err
		}
		order.AssignedToID = req.AssignedToID
		order.Status = domain.OrderStatusAssigned
	}

	s.geocodeOrder(ctx, order)

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("order created",
		zap.String("module", string(s.Module().Code)),
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)))

	dto := mapper.ToOrderDTO(order)
	return &dto, nil
}

// geocodeOrder fills the coordinates of the order address. Failures are logged and ignored.
func (s *OrderService) geocodeOrder(ctx context.Context, order *domain.Order) {
	if s.geocoder == nil {
		return
	}
	point, err := s.geocoder.Geocode(ctx, geocode.Address{
		Street:     order.Street,
		PostalCode: order.PostalCode,
		City:       order.City,
	})
	if err != nil {
		if errors.Is(err, geocode.ErrDisabled) {
			return
		}
		s.logger.Warn("failed to geocode order address",
			zap.String("order_number", order.OrderNumber),
			zap.String("address", order.Address()),
			zap.Error(err))
		return
	}
	order.Latitude = &point.Latitude
	order.Longitude = &point.Longitude
}

// Assign sets or clears the technician of a non-terminal order
func (s *OrderService) Assign(ctx context.Context, id uuid.UUID, technicianID *uuid.UUID) (*domain.OrderDTO, error) {
	if technicianID != nil {
		if err := s.checkTechnician(ctx, *technicianID); err != nil {
			return nil, err
		}
	}

	var order *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orderRepo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, orders, id)
		if err != nil {
			return err
		}

		next := domain.OrderStatusPending
		if technicianID != nil {
			next = domain.OrderStatusAssigned
		}
		if !isValidOrderTransition(order.Status, next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, next)
		}
		order.Status = next
		order.AssignedToID = technicianID
		return orders.Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	dto := mapper.ToOrderDTO(order)
	return &dto, nil
}

// Complete closes an assigned order. Completion, settlements and every stock movement it
// implies are committed together or not at all.
func (s *OrderService) Complete(ctx context.Context, id uuid.UUID, req *domain.CompleteOrderRequest) (*domain.OrderDetailsDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.OrderStatusCompleted && req.Status != domain.OrderStatusNotCompleted {
		return nil, fmt.Errorf("%w: status must be COMPLETED or NOT_COMPLETED", ErrInvalidInput)
	}

	var l *ledger
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orderRepo.WithTx(tx)
		order, err := s.lockOrder(ctx, orders, id)
		if err != nil {
			return err
		}
		if user.HasRole(domain.RoleTechnician) && (order.AssignedToID == nil || *order.AssignedToID != user.UserID) {
			return ErrForbidden
		}
		if !isValidOrderTransition(order.Status, req.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, req.Status)
		}

		now := time.Now().UTC()
		order.Status = req.Status
		order.CompletedAt = &now
		if req.Notes != "" {
			order.Notes = req.Notes
		}

		if req.Status == domain.OrderStatusNotCompleted {
			reason := strings.TrimSpace(req.FailureReason)
			if !s.Module().IsFailureReason(reason) {
				return fmt.Errorf("%w: unknown failure reason %q", ErrInvalidInput, req.FailureReason)
			}
			order.FailureReason = &reason
			return orders.Update(ctx, order)
		}
		order.FailureReason = nil

		if s.Module().IsBillable(order.Type) && len(req.WorkCodes) == 0 {
			return fmt.Errorf("%w: work codes are required for %s orders", ErrInvalidInput, order.Type)
		}
		codes, settlements, err := s.settle(ctx, s.rateRepo.WithTx(tx), order.ID, req.WorkCodes)
		if err != nil {
			return err
		}
		if err := orders.CreateWorkCodes(ctx, codes); err != nil {
			return fmt.Errorf("failed to save work codes: %w", err)
		}
		if err := orders.CreateSettlements(ctx, settlements); err != nil {
			return fmt.Errorf("failed to save settlements: %w", err)
		}

		l = newLedger(tx, s.stockRepo.WithTx(tx), performerID(ctx))
		if err := s.applyStock(ctx, l, order, req); err != nil {
			return err
		}
		return orders.Update(ctx, order)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.RecordStockRejection(string(s.Module().Code))
		}
		return nil, err
	}

	s.metrics.RecordOrderClosed(string(s.Module().Code), string(req.Status))
	if l != nil {
		for _, action := range l.actions {
			s.metrics.RecordStockMovement(string(s.Module().Code), string(action))
		}
	}

	s.logger.Info("order closed",
		zap.String("module", string(s.Module().Code)),
		zap.String("order_id", id.String()),
		zap.String("status", string(req.Status)))

	return s.Get(ctx, id)
}

// applyStock consumes reported materials, attaches issued devices and receives
// devices collected from the client into the technician's stock.
func (s *OrderService) applyStock(ctx context.Context, l *ledger, order *domain.Order, req *domain.CompleteOrderRequest) error {
	holder := order.AssignedToID

	used := make(map[string]int)
	names := make([]string, 0, len(req.UsedMaterials))
	for _, m := range req.UsedMaterials {
		name := strings.TrimSpace(m.Name)
		if m.Quantity < 1 {
			return fmt.Errorf("%w: material quantity must be positive", ErrInvalidInput)
		}
		if _, ok := used[name]; !ok {
			names = append(names, name)
		}
		used[name] += m.Quantity
	}
	for _, name := range names {
		if err := l.consumeMaterial(ctx, holder, name, used[name], order.ID); err != nil {
			return err
		}
	}

	for _, deviceID := range dedupeIDs(req.IssuedDeviceIDs) {
		item, err := l.lockItem(ctx, deviceID)
		if err != nil {
			return err
		}
		if !item.IsDevice() {
			return fmt.Errorf("%w: %s is not a device", ErrInvalidInput, item.Name)
		}
		if _, err := l.assignToOrder(ctx, deviceID, order.ID, holder, 1); err != nil {
			return err
		}
	}

	for _, d := range req.CollectedDevices {
		in := domain.ReceiveItemInput{
			ItemType:     domain.StockItemDevice,
			Category:     d.Category,
			Name:         d.Name,
			SerialNumber: d.SerialNumber,
		}
		if _, err := l.receive(ctx, in, holder, nil, &order.ID, domain.StockActionCollected, "collected at order "+order.OrderNumber); err != nil {
			return err
		}
	}
	return nil
}

// settle turns reported work codes into work code rows and priced settlement entries.
// Modules with a billing catalog validate a draft first; the others bill each code directly.
func (s *OrderService) settle(ctx context.Context, rates *repository.RateRepository, orderID uuid.UUID, input []domain.WorkCodeInput) ([]domain.OrderWorkCode, []domain.OrderSettlement, error) {
	reported := make([]billing.WorkCode, 0, len(input))
	for _, wc := range input {
		reported = append(reported, billing.WorkCode{Code: wc.Code, Quantity: wc.Quantity})
	}

	var lines []billing.Line
	if catalog := s.Module().Billing; catalog != nil {
		draft, err := billing.BuildDraft(reported, catalog)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidBillingDraft, err)
		}
		if err := billing.Validate(draft); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidBillingDraft, err)
		}
		lines = draft.Lines()
	} else {
		lines = mergeWorkCodes(reported)
	}

	codes := make([]domain.OrderWorkCode, 0, len(lines))
	rateCodes := make([]string, 0, len(lines))
	for _, line := range lines {
		codes = append(codes, domain.OrderWorkCode{OrderID: orderID, Code: line.Code, Quantity: line.Quantity})
		rateCodes = append(rateCodes, line.Code)
	}

	defs, err := rates.GetRatesByCodes(ctx, rateCodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rates: %w", err)
	}
	settlements := make([]domain.OrderSettlement, 0, len(lines))
	for _, line := range lines {
		def, ok := defs[line.Code]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no rate defined for work code %s", ErrInvalidInput, line.Code)
		}
		settlements = append(settlements, domain.OrderSettlement{
			OrderID:  orderID,
			RateCode: line.Code,
			Quantity: line.Quantity,
			Amount:   def.Amount * float64(line.Quantity),
		})
	}
	return codes, settlements, nil
}

// mergeWorkCodes normalizes codes and sums the quantity of repeated ones, keeping first-seen order
func mergeWorkCodes(codes []billing.WorkCode) []billing.Line {
	index := make(map[string]int, len(codes))
	lines := make([]billing.Line, 0, len(codes))
	for _, wc := range codes {
		code := strings.ToUpper(strings.TrimSpace(wc.Code))
		qty := wc.Quantity
		if qty < 1 {
			qty = 1
		}
		if i, ok := index[code]; ok {
			lines[i].Quantity += qty
			continue
		}
		index[code] = len(lines)
		lines = append(lines, billing.Line{Code: code, Quantity: qty})
	}
	return lines
}

// CreateRetry schedules a new attempt of a NOT_COMPLETED order. The previous attempt is left unchanged.
func (s *OrderService) CreateRetry(ctx context.Context, id uuid.UUID, req *domain.CreateRetryRequest) (*domain.OrderDTO, error) {
	if req.AssignedToID != nil {
		if err := s.checkTechnician(ctx, *req.AssignedToID); err != nil {
			return nil, err
		}
	}

	var retry *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orderRepo.WithTx(tx)
		previous, err := s.lockOrder(ctx, orders, id)
		if err != nil {
			return err
		}
		if previous.Status != domain.OrderStatusNotCompleted {
			return fmt.Errorf("%w: only NOT_COMPLETED orders can be retried", ErrInvalidTransition)
		}
		exists, err := orders.HasRetry(ctx, previous.ID)
		if err != nil {
			return fmt.Errorf("failed to check retries: %w", err)
		}
		if exists {
			return ErrRetryExists
		}

		notes := req.Notes
		if notes == "" {
			notes = previous.Notes
		}
		retry = &domain.Order{
			OrderNumber:     previous.OrderNumber,
			Type:            previous.Type,
			Status:          domain.OrderStatusPending,
			Operator:        previous.Operator,
			Date:            dateOnly(req.Date),
			TimeSlot:        req.TimeSlot,
			Notes:           notes,
			AttemptNumber:   previous.AttemptNumber + 1,
			PreviousOrderID: &previous.ID,
			City:            previous.City,
			Street:          previous.Street,
			PostalCode:      previous.PostalCode,
			Latitude:        previous.Latitude,
			Longitude:       previous.Longitude,
			CreatedByID:     performerID(ctx),
		}
		if req.AssignedToID != nil {
			retry.AssignedToID = req.AssignedToID
			retry.Status = domain.OrderStatusAssigned
		}
		return orders.Create(ctx, retry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order retry created",
		zap.String("module", string(s.Module().Code)),
		zap.String("order_number", retry.OrderNumber),
		zap.Int("attempt", retry.AttemptNumber))

	dto := mapper.ToOrderDTO(retry)
	return &dto, nil
}

// Get returns an order with its work codes, settlements and attached devices
func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*domain.OrderDetailsDTO, error) {
	order, err := s.getVisible(ctx, id)
	if err != nil {
		return nil, err
	}
	codes, err := s.orderRepo.ListWorkCodes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list work codes: %w", err)
	}
	settlements, err := s.orderRepo.ListSettlements(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	devices, err := s.stockRepo.ListByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	dto := mapper.ToOrderDetailsDTO(order, codes, settlements, devices)
	return &dto, nil
}

// Catalog returns the rate card and material catalog of the module
func (s *OrderService) Catalog(ctx context.Context) (*domain.CatalogDTO, error) {
	rates, err := s.rateRepo.ListRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	materials, err := s.rateRepo.ListMaterials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	catalog := mapper.ToCatalogDTO(rates, materials)
	return &catalog, nil
}

// List returns a page of orders. Technicians only see their own.
func (s *OrderService) List(ctx context.Context, page, pageSize int, filters *domain.OrderFilters) (*domain.PaginatedResponse, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &domain.OrderFilters{}
	}
	if user.HasRole(domain.RoleTechnician) {
		own := user.UserID
		filters.AssignedToID = &own
		filters.Unassigned = false
	}

	page, pageSize = repository.NormalizePage(page, pageSize)
	orders, total, err := s.orderRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return paginate(mapper.ToOrderDTOs(orders), total, page, pageSize), nil
}

// History returns every attempt of the order's job, first attempt first
func (s *OrderService) History(ctx context.Context, id uuid.UUID) ([]domain.OrderDTO, error) {
	order, err := s.getVisible(ctx, id)
	if err != nil {
		return nil, err
	}
	attempts, err := s.orderRepo.ListAttempts(ctx, order.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return mapper.ToOrderDTOs(attempts), nil
}

// Earnings summarizes the settlements of a technician's completed orders in the month of
// the given date against their goals
func (s *OrderService) Earnings(ctx context.Context, technicianID uuid.UUID, month time.Time) (*domain.EarningsDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if user.HasRole(domain.RoleTechnician) && user.UserID != technicianID {
		return nil, ErrForbidden
	}

	month = month.UTC()
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	orders, err := s.orderRepo.ListCompletedForTechnician(ctx, technicianID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed orders: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(orders))
	days := make(map[string]struct{})
	for _, o := range orders {
		ids = append(ids, o.ID)
		days[o.Date.UTC().Format("2006-01-02")] = struct{}{}
	}
	settlements, err := s.orderRepo.ListSettlementsForOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}

	result := &domain.EarningsDTO{
		TechnicianID:    technicianID,
		Month:           from.Format("2006-01"),
		CompletedOrders: len(orders),
		WorkingDays:     len(days),
	}
	for _, st := range settlements {
		result.Amount += st.Amount
	}

	settings, err := s.settingsRepo.Get(ctx, technicianID, s.Module().Code)
	if err != nil {
		return nil, fmt.Errorf("failed to get technician settings: %w", err)
	}
	if settings != nil {
		result.WorkingDaysGoal = settings.WorkingDaysGoal
		result.RevenueGoal = settings.RevenueGoal
	}
	return result, nil
}

// Settlements returns completed orders in [from, to) with their settlement entries, ordered by date
func (s *OrderService) Settlements(ctx context.Context, from, to time.Time) ([]domain.Order, map[uuid.UUID][]domain.OrderSettlement, error) {
	status := domain.OrderStatusCompleted
	orders, err := s.orderRepo.ListAll(ctx, &domain.OrderFilters{Status: &status, DateFrom: &from, DateTo: &to})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list orders: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	entries, err := s.orderRepo.ListSettlementsForOrders(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	byOrder := make(map[uuid.UUID][]domain.OrderSettlement, len(orders))
	for _, e := range entries {
		byOrder[e.OrderID] = append(byOrder[e.OrderID], e)
	}
	for id := range byOrder {
		sort.Slice(byOrder[id], func(i, j int) bool { return byOrder[id][i].RateCode < byOrder[id][j].RateCode })
	}
	return orders, byOrder, nil
}

func (s *OrderService) lockOrder(ctx context.Context, orders *repository.OrderRepository, id uuid.UUID) (*domain.Order, error) {
	order, err := orders.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// getVisible loads an order the current user may read
func (s *OrderService) getVisible(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if user.HasRole(domain.RoleTechnician) && (order.AssignedToID == nil || *order.AssignedToID != user.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) checkTechnician(ctx context.Context, id uuid.UUID) error {
	return checkModuleTechnician(ctx, s.userRepo, s.accessRepo, s.Module().Code, id)
}

// isValidOrderTransition checks if a status transition is allowed
func isValidOrderTransition(from, to domain.OrderStatus) bool {
	for _, next := range validOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
