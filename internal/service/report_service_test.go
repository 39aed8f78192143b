package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/report"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/storage"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func createReportService(t *testing.T, db *gorm.DB, m *domain.ModuleDescriptor, store storage.Storage) *service.ReportService {
	t.Helper()
	orders := createOrderService(db, m, nil)
	return service.NewReportService(
		orders,
		repository.NewStockRepository(db, m),
		repository.NewOrderRepository(db, m),
		repository.NewUserRepository(db),
		store,
		metrics.New(),
		zap.NewNop(),
	)
}

func openReport(t *testing.T, file *domain.ReportFileDTO) *excelize.File {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(file.ContentBase64)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestReportService_WarehouseStock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	m := testutil.MustModule(t, domain.ModuleOPL)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := createReportService(t, db, m, store)
	admin := testutil.CreateUser(t, db, domain.RoleAdmin, nil)
	ctx := userContext(admin)

	_, err = svc.WarehouseStock(ctx)
	assert.ErrorIs(t, err, report.ErrNoRows)

	testutil.CreateStockItem(t, db, m, &domain.StockItem{
		ItemType: domain.StockItemMaterial, Name: "Cable", Quantity: 40, Price: 1.5,
	})
	testutil.CreateStockItem(t, db, m, &domain.StockItem{
		ItemType: domain.StockItemDevice, Name: "ONT", SerialNumber: testutil.Ptr("S-1"),
	})

	file, err := svc.WarehouseStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.XLSXContentType, file.ContentType)
	assert.Contains(t, file.FileName, "opl-warehouse-stock-")

	f := openReport(t, file)
	rows, err := f.GetRows("Warehouse")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Type", rows[0][0])
	assert.Equal(t, "DEVICE", rows[1][0])
	assert.Equal(t, "S-1", rows[1][3])
	assert.Equal(t, "Cable", rows[2][2])

	key, err := svc.ArchiveWarehouseSnapshot(context.Background())
	require.NoError(t, err)
	archived, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	_ = archived.Close()
}

func TestReportService_SettlementsAndOrders(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleVectra)
	svc := createReportService(t, f.db, f.m, nil)
	testutil.CreateRate(t, f.db, f.m, "INST", 90)

	order := f.assignedOrder(t, "V-100", domain.OrderTypeInstallation)
	_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
		Status:    domain.OrderStatusCompleted,
		WorkCodes: []domain.WorkCodeInput{{Code: "INST", Quantity: 2}},
	})
	require.NoError(t, err)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	file, err := svc.Settlements(f.ctx, from, to)
	require.NoError(t, err)
	rows, err := openReport(t, file).GetRows("Settlements")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2026-10-05", "V-100", f.tech.Name, "INST", "2", "180"}, rows[1])

	file, err = svc.Orders(f.ctx, from, to)
	require.NoError(t, err)
	rows, err = openReport(t, file).GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "COMPLETED", rows[1][3])

	_, err = svc.Orders(f.ctx, to, to.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, report.ErrNoRows)
}
