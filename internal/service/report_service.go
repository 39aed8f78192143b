package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/report"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// XLSXContentType is the media type of generated reports
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Report kinds, used in file names, archive keys and metrics
const (
	ReportWarehouseStock  = "warehouse-stock"
	ReportTechnicianStock = "technician-stock"
	ReportOrders          = "orders"
	ReportReturnedDevices = "returned-devices"
	ReportSettlements     = "settlements"
)

const dateLayout = "2006-01-02"

// ReportService builds spreadsheet exports of one module
type ReportService struct {
	orderService *OrderService
	stockRepo    *repository.StockRepository
	orderRepo    *repository.OrderRepository
	userRepo     *repository.UserRepository
	storage      storage.Storage
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewReportService creates a report service. A nil storage disables archiving.
func NewReportService(
	orderService *OrderService,
	stockRepo *repository.StockRepository,
	orderRepo *repository.OrderRepository,
	userRepo *repository.UserRepository,
	storage storage.Storage,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		orderService: orderService,
		stockRepo:    stockRepo,
		orderRepo:    orderRepo,
		userRepo:     userRepo,
		storage:      storage,
		metrics:      metrics,
		logger:       logger,
	}
}

func (s *ReportService) module() *domain.ModuleDescriptor {
	return s.stockRepo.Module()
}

// WarehouseStock exports the central warehouse, limited to the active location when one is set
func (s *ReportService) WarehouseStock(ctx context.Context) (*domain.ReportFileDTO, error) {
	rows, err := s.warehouseRows(ctx)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, ReportWarehouseStock, "Warehouse", rows)
}

func (s *ReportService) warehouseRows(ctx context.Context) ([]report.Row, error) {
	filters := &domain.StockFilters{CentralOnly: true}
	if caps, ok := auth.CapabilitiesFromContext(ctx); ok && caps.ActiveLocationID != nil {
		filters.LocationID = caps.ActiveLocationID
	}
	items, err := s.stockRepo.ListAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}

	rows := make([]report.Row, 0, len(items))
	for _, item := range items {
		if !item.IsDevice() && item.Quantity == 0 {
			continue
		}
		if item.Status != domain.StockStatusAvailable {
			continue
		}
		rows = append(rows, stockRow(item))
	}
	return rows, nil
}

// TechnicianStock exports what a technician holds
func (s *ReportService) TechnicianStock(ctx context.Context, technicianID uuid.UUID) (*domain.ReportFileDTO, error) {
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
	rows := make([]report.Row, 0, len(items))
	for _, item := range items {
		if !item.IsDevice() && item.Quantity == 0 {
			continue
		}
		rows = append(rows, stockRow(item))
	}
	return s.generate(ctx, ReportTechnicianStock, "Technician stock", rows)
}

func stockRow(item domain.StockItem) report.Row {
	serial := ""
	if item.SerialNumber != nil {
		serial = *item.SerialNumber
	}
	return report.Row{
		{Key: "Type", Value: string(item.ItemType)},
		{Key: "Category", Value: item.Category},
		{Key: "Name", Value: item.Name},
		{Key: "Serial number", Value: serial},
		{Key: "Quantity", Value: item.Quantity},
		{Key: "Unit price", Value: item.Price},
		{Key: "Value", Value: item.Price * float64(item.Quantity)},
	}
}

// Orders exports the orders dated within [from, to)
func (s *ReportService) Orders(ctx context.Context, from, to time.Time) (*domain.ReportFileDTO, error) {
	orders, err := s.orderRepo.ListAll(ctx, &domain.OrderFilters{DateFrom: &from, DateTo: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	names, err := s.technicianNames(ctx, orders)
	if err != nil {
		return nil, err
	}

	rows := make([]report.Row, 0, len(orders))
	for _, o := range orders {
		reason := ""
		if o.FailureReason != nil {
			reason = *o.FailureReason
		}
		rows = append(rows, report.Row{
			{Key: "Order number", Value: o.OrderNumber},
			{Key: "Attempt", Value: o.AttemptNumber},
			{Key: "Type", Value: string(o.Type)},
			{Key: "Status", Value: string(o.Status)},
			{Key: "Date", Value: o.Date.UTC().Format(dateLayout)},
			{Key: "Time slot", Value: o.TimeSlot},
			{Key: "Technician", Value: holderName(names, o.AssignedToID)},
			{Key: "Address", Value: o.Address()},
			{Key: "Failure reason", Value: reason},
		})
	}
	return s.generate(ctx, ReportOrders, "Orders", rows)
}

// ReturnedDevices exports the devices returned to the operator within [from, to)
func (s *ReportService) ReturnedDevices(ctx context.Context, from, to time.Time) (*domain.ReportFileDTO, error) {
	entries, err := s.stockRepo.ListReturnedToOperator(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list returned devices: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.WarehouseItemID)
	}
	items, err := s.stockRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	rows := make([]report.Row, 0, len(entries))
	for _, e := range entries {
		item := items[e.WarehouseItemID]
		serial := ""
		if item.SerialNumber != nil {
			serial = *item.SerialNumber
		}
		rows = append(rows, report.Row{
			{Key: "Name", Value: item.Name},
			{Key: "Category", Value: item.Category},
			{Key: "Serial number", Value: serial},
			{Key: "Received", Value: e.ActionDate.UTC().Format(dateLayout)},
			{Key: "Returned to operator", Value: e.ReturnedToOperatorAt.UTC().Format(dateLayout)},
		})
	}
	return s.generate(ctx, ReportReturnedDevices, "Returned devices", rows)
}

// Settlements exports the settlement entries of completed orders dated within [from, to)
func (s *ReportService) Settlements(ctx context.Context, from, to time.Time) (*domain.ReportFileDTO, error) {
	orders, byOrder, err := s.orderService.Settlements(ctx, from, to)
	if err != nil {
		return nil, err
	}
	names, err := s.technicianNames(ctx, orders)
	if err != nil {
		return nil, err
	}

	rows := make([]report.Row, 0, len(orders))
	for _, o := range orders {
		for _, st := range byOrder[o.ID] {
			rows = append(rows, report.Row{
				{Key: "Date", Value: o.Date.UTC().Format(dateLayout)},
				{Key: "Order number", Value: o.OrderNumber},
				{Key: "Technician", Value: holderName(names, o.AssignedToID)},
				{Key: "Code", Value: st.RateCode},
				{Key: "Quantity", Value: st.Quantity},
				{Key: "Amount", Value: st.Amount},
			})
		}
	}
	return s.generate(ctx, ReportSettlements, "Settlements", rows)
}

// ArchiveWarehouseSnapshot stores the current central stock export and returns its key
func (s *ReportService) ArchiveWarehouseSnapshot(ctx context.Context) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("%w: report archive is not configured", ErrInvalidInput)
	}
	rows, err := s.warehouseRows(ctx)
	if err != nil {
		return "", err
	}
	data, err := report.Build("Warehouse", rows)
	if err != nil {
		return "", err
	}
	key := s.archiveKey(ReportWarehouseStock, time.Now().UTC())
	if _, err := s.storage.Put(ctx, key, XLSXContentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to archive report: %w", err)
	}
	s.metrics.RecordReport(string(s.module().Code), ReportWarehouseStock)
	return key, nil
}

func (s *ReportService) generate(ctx context.Context, kind, sheet string, rows []report.Row) (*domain.ReportFileDTO, error) {
	data, err := report.Build(sheet, rows)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fileName := fmt.Sprintf("%s-%s-%s.xlsx", s.module().Code, kind, now.Format("20060102-150405"))

	if s.storage != nil {
		key := s.archiveKey(kind, now)
		if _, err := s.storage.Put(ctx, key, XLSXContentType, bytes.NewReader(data)); err != nil {
			s.logger.Warn("failed to archive report", zap.String("key", key), zap.Error(err))
		}
	}
	s.metrics.RecordReport(string(s.module().Code), kind)

	s.logger.Info("report generated",
		zap.String("module", string(s.module().Code)),
		zap.String("report", kind),
		zap.Int("rows", len(rows)))

	return &domain.ReportFileDTO{
		FileName:      fileName,
		ContentType:   XLSXContentType,
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (s *ReportService) archiveKey(kind string, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s/%s-%s.xlsx", s.module().Code, kind, at.Format("2006/01/02"), uuid.NewString()[:8])
}

func (s *ReportService) technicianNames(ctx context.Context, orders []domain.Order) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		if o.AssignedToID != nil {
			ids = append(ids, *o.AssignedToID)
		}
	}
	names, err := s.userRepo.GetNames(ctx, dedupeIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load technician names: %w", err)
	}
	return names, nil
}

func holderName(names map[uuid.UUID]string, id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return names[*id]
}
