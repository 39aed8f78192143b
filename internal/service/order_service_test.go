package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/billing"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/geocode"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGeocoder struct {
	point *geocode.Point
	err   error
	calls int
}

func (g *stubGeocoder) Geocode(ctx context.Context, addr geocode.Address) (*geocode.Point, error) {
	g.calls++
	return g.point, g.err
}

func createOrderService(db *gorm.DB, m *domain.ModuleDescriptor, geocoder service.Geocoder) *service.OrderService {
	return service.NewOrderService(
		repository.NewOrderRepository(db, m),
		repository.NewStockRepository(db, m),
		repository.NewRateRepository(db, m),
		repository.NewUserRepository(db),
		repository.NewModuleAccessRepository(db),
		repository.NewTechnicianSettingsRepository(db),
		geocoder,
		metrics.New(),
		zap.NewNop(),
		db,
	)
}

type orderFixture struct {
	db    *gorm.DB
	m     *domain.ModuleDescriptor
	svc   *service.OrderService
	admin *domain.User
	tech  *domain.User
	ctx   context.Context
}

func newOrderFixture(t *testing.T, code domain.ModuleCode) *orderFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	m := testutil.MustModule(t, code)
	admin := testutil.CreateUser(t, db, domain.RoleAdmin, nil)
	tech := testutil.CreateUser(t, db, domain.RoleTechnician, []domain.ModuleCode{code})
	return &orderFixture{
		db:    db,
		m:     m,
		svc:   createOrderService(db, m, nil),
		admin: admin,
		tech:  tech,
		ctx:   userContext(admin),
	}
}

func (f *orderFixture) assignedOrder(t *testing.T, number string, orderType domain.OrderType) *domain.OrderDTO {
	t.Helper()
	order, err := f.svc.Create(f.ctx, &domain.CreateOrderRequest{
		OrderNumber:  number,
		Type:         orderType,
		Date:         time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
		City:         "Gdansk",
		Street:       "Dluga 1",
		AssignedToID: &f.tech.ID,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAssigned, order.Status)
	return order
}

func TestOrderService_Create(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleOPL)

	t.Run("pending without technician and geocoded", func(t *testing.T) {
		geo := &stubGeocoder{point: &geocode.Point{Latitude: 54.35, Longitude: 18.65}}
		svc := createOrderService(f.db, f.m, geo)
		order, err := svc.Create(f.ctx, &domain.CreateOrderRequest{
			OrderNumber: " ZL-1 ",
			Type:        domain.OrderTypeInstallation,
			Date:        time.Date(2026, 10, 5, 14, 30, 0, 0, time.UTC),
			City:        "Gdansk",
			Street:      "Dluga 1",
		})
		require.NoError(t, err)
		assert.Equal(t, "ZL-1", order.OrderNumber)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
		assert.Equal(t, "2026-10-05", order.Date)
		assert.Equal(t, 1, order.AttemptNumber)
		require.NotNil(t, order.Latitude)
		assert.InDelta(t, 54.35, *order.Latitude, 0.0001)
		assert.Equal(t, 1, geo.calls)
	})

	t.Run("geocoding failure is ignored", func(t *testing.T) {
		svc := createOrderService(f.db, f.m, &stubGeocoder{err: errors.New("timeout")})
		order, err := svc.Create(f.ctx, &domain.CreateOrderRequest{
			OrderNumber: "ZL-2",
			Type:        domain.OrderTypeService,
			Date:        time.Now(),
			City:        "Gdynia",
			Street:      "Swietojanska 5",
		})
		require.NoError(t, err)
		assert.Nil(t, order.Latitude)
	})

	t.Run("duplicate order number", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, &domain.CreateOrderRequest{
			OrderNumber: "ZL-1", Type: domain.OrderTypeService, Date: time.Now(), City: "A", Street: "B",
		})
		assert.ErrorIs(t, err, service.ErrConflict)
	})

	t.Run("assigned to technician", func(t *testing.T) {
		f.assignedOrder(t, "ZL-3", domain.OrderTypeOutage)
	})

	t.Run("technician outside the module", func(t *testing.T) {
		other := testutil.CreateUser(t, f.db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleVectra})
		_, err := f.svc.Create(f.ctx, &domain.CreateOrderRequest{
			OrderNumber: "ZL-4", Type: domain.OrderTypeService, Date: time.Now(), City: "A", Street: "B",
			AssignedToID: &other.ID,
		})
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})
}

func TestOrderService_Assign(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleVectra)
	order := f.assignedOrder(t, "V-1", domain.OrderTypeService)

	unassigned, err := f.svc.Assign(f.ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, unassigned.Status)
	assert.Nil(t, unassigned.AssignedToID)

	again, err := f.svc.Assign(f.ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, again.Status)
	assert.Nil(t, again.AssignedToID)

	reassigned, err := f.svc.Assign(f.ctx, order.ID, &f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusAssigned, reassigned.Status)

	_, err = f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
		Status: domain.OrderStatusNotCompleted, FailureReason: "CLIENT_ABSENT",
	})
	require.NoError(t, err)

	_, err = f.svc.Assign(f.ctx, order.ID, nil)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = f.svc.Assign(f.ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
}

func TestOrderService_CompleteWithBillingDraft(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleOPL)
	testutil.CreateRate(t, f.db, f.m, "W1", 100)
	testutil.CreateRate(t, f.db, f.m, "I_1P", 50)
	testutil.CreateRate(t, f.db, f.m, "DMR", 20)

	cable := testutil.CreateStockItem(t, f.db, f.m, &domain.StockItem{
		ItemType: domain.StockItemMaterial, Name: "Cable", Quantity: 10, AssignedToID: &f.tech.ID,
	})
	ont := testutil.CreateStockItem(t, f.db, f.m, &domain.StockItem{
		ItemType: domain.StockItemDevice, Name: "ONT", SerialNumber: testutil.Ptr("ONT-1"), AssignedToID: &f.tech.ID,
	})
	order := f.assignedOrder(t, "ZL-10", domain.OrderTypeInstallation)

	details, err := f.svc.Complete(userContext(f.tech), order.ID, &domain.CompleteOrderRequest{
		Status: domain.OrderStatusCompleted,
		WorkCodes: []domain.WorkCodeInput{
			{Code: "w1", Quantity: 1},
			{Code: "I_1P", Quantity: 1},
			{Code: "DMR", Quantity: 2},
		},
		UsedMaterials:    []domain.UsedMaterialInput{{Name: "Cable", Quantity: 3}, {Name: "Cable", Quantity: 1}},
		IssuedDeviceIDs:  []uuid.UUID{ont.ID},
		CollectedDevices: []domain.CollectedDeviceInput{{Name: "Old ONT", SerialNumber: "OLD-1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCompleted, details.Status)
	assert.NotNil(t, details.CompletedAt)
	assert.Len(t, details.WorkCodes, 3)
	assert.Len(t, details.Settlements, 3)
	assert.InDelta(t, 190.0, details.Total, 0.001)
	require.Len(t, details.Devices, 1)
	assert.Equal(t, ont.ID, details.Devices[0].ID)
	assert.Equal(t, domain.StockStatusAssignedToOrder, details.Devices[0].Status)

	stock := repository.NewStockRepository(f.db, f.m)
	left, err := stock.GetByID(context.Background(), cable.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, left.Quantity)

	collected, err := stock.GetBySerial(context.Background(), "OLD-1")
	require.NoError(t, err)
	require.NotNil(t, collected)
	assert.Equal(t, &f.tech.ID, collected.AssignedToID)

	entries, err := stock.ListHistoryByAction(context.Background(), domain.StockActionCollected,
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, &order.ID, entries[0].OrderID)
}

func TestOrderService_CompleteRejectionsLeaveNoTrace(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleOPL)
	testutil.CreateRate(t, f.db, f.m, "W1", 100)
	testutil.CreateRate(t, f.db, f.m, "DMR", 20)
	testutil.CreateStockItem(t, f.db, f.m, &domain.StockItem{
		ItemType: domain.StockItemMaterial, Name: "Cable", Quantity: 2, AssignedToID: &f.tech.ID,
	})
	order := f.assignedOrder(t, "ZL-20", domain.OrderTypeInstallation)

	t.Run("invalid draft", func(t *testing.T) {
		_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
			Status:    domain.OrderStatusCompleted,
			WorkCodes: []domain.WorkCodeInput{{Code: "W1"}, {Code: "DMR", Quantity: 1}},
		})
		require.ErrorIs(t, err, service.ErrInvalidBillingDraft)
		assert.ErrorIs(t, err, billing.ErrDMRRequiresActivation)

		var ruleErr *billing.RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, billing.RuleDMRRequiresActivate, ruleErr.Rule)
	})

	t.Run("unknown work code", func(t *testing.T) {
		_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
			Status:    domain.OrderStatusCompleted,
			WorkCodes: []domain.WorkCodeInput{{Code: "W1"}, {Code: "XYZ"}},
		})
		require.ErrorIs(t, err, service.ErrInvalidBillingDraft)
		assert.ErrorIs(t, err, billing.ErrUnknownWorkCode)
	})

	t.Run("more material than held", func(t *testing.T) {
		_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
			Status:        domain.OrderStatusCompleted,
			WorkCodes:     []domain.WorkCodeInput{{Code: "W1"}},
			UsedMaterials: []domain.UsedMaterialInput{{Name: "Cable", Quantity: 3}},
		})
		assert.ErrorIs(t, err, service.ErrInsufficientStock)
	})

	t.Run("billable order without work codes", func(t *testing.T) {
		_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{Status: domain.OrderStatusCompleted})
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("unknown failure reason", func(t *testing.T) {
		_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
			Status: domain.OrderStatusNotCompleted, FailureReason: "RAIN",
		})
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("other technician", func(t *testing.T) {
		other := testutil.CreateUser(t, f.db, domain.RoleTechnician, []domain.ModuleCode{domain.ModuleOPL})
		_, err := f.svc.Complete(userContext(other), order.ID, &domain.CompleteOrderRequest{
			Status: domain.OrderStatusNotCompleted, FailureReason: "CLIENT_ABSENT",
		})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	details, err := f.svc.Get(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusAssigned, details.Status)
	assert.Empty(t, details.WorkCodes)
	assert.Empty(t, details.Settlements)

	sum, err := repository.NewStockRepository(f.db, f.m).SumForHolder(context.Background(), &f.tech.ID, "Cable")
	require.NoError(t, err)
	assert.Equal(t, 2, sum)
}

func TestOrderService_CompleteWithoutCatalogBillsCodesDirectly(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleVectra)
	testutil.CreateRate(t, f.db, f.m, "INST", 80)
	testutil.CreateRate(t, f.db, f.m, "CABLE", 5)
	order := f.assignedOrder(t, "V-10", domain.OrderTypeInstallation)

	details, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
		Status: domain.OrderStatusCompleted,
		WorkCodes: []domain.WorkCodeInput{
			{Code: "inst", Quantity: 0},
			{Code: "CABLE", Quantity: 3},
			{Code: "CABLE", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, details.Settlements, 2)
	assert.InDelta(t, 100.0, details.Total, 0.001)

	outage := f.assignedOrder(t, "V-11", domain.OrderTypeOutage)
	closed, err := f.svc.Complete(f.ctx, outage.ID, &domain.CompleteOrderRequest{Status: domain.OrderStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, closed.Status)
	assert.Empty(t, closed.Settlements)

	missing := f.assignedOrder(t, "V-12", domain.OrderTypeService)
	_, err = f.svc.Complete(f.ctx, missing.ID, &domain.CompleteOrderRequest{
		Status:    domain.OrderStatusCompleted,
		WorkCodes: []domain.WorkCodeInput{{Code: "UNPRICED", Quantity: 1}},
	})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestOrderService_CreateRetry(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleOPL)
	order := f.assignedOrder(t, "ZL-30", domain.OrderTypeService)

	_, err := f.svc.CreateRetry(f.ctx, order.ID, &domain.CreateRetryRequest{Date: time.Now()})
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
		Status: domain.OrderStatusNotCompleted, FailureReason: "CLIENT_ABSENT",
	})
	require.NoError(t, err)

	retry, err := f.svc.CreateRetry(f.ctx, order.ID, &domain.CreateRetryRequest{
		Date:         time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC),
		AssignedToID: &f.tech.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "ZL-30", retry.OrderNumber)
	assert.Equal(t, 2, retry.AttemptNumber)
	assert.Equal(t, &order.ID, retry.PreviousOrderID)
	assert.Equal(t, domain.OrderStatusAssigned, retry.Status)

	_, err = f.svc.CreateRetry(f.ctx, order.ID, &domain.CreateRetryRequest{Date: time.Now()})
	assert.ErrorIs(t, err, service.ErrRetryExists)

	previous, err := f.svc.Get(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusNotCompleted, previous.Status)
	require.NotNil(t, previous.FailureReason)
	assert.Equal(t, "CLIENT_ABSENT", *previous.FailureReason)

	history, err := f.svc.History(f.ctx, retry.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].AttemptNumber)
	assert.Equal(t, 2, history[1].AttemptNumber)
}

func TestOrderService_TechnicianSeesOwnOrders(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleOPL)
	own := f.assignedOrder(t, "ZL-40", domain.OrderTypeService)
	_, err := f.svc.Create(f.ctx, &domain.CreateOrderRequest{
		OrderNumber: "ZL-41", Type: domain.OrderTypeService, Date: time.Now(), City: "A", Street: "B",
	})
	require.NoError(t, err)

	techCtx := userContext(f.tech)
	page, err := f.svc.List(techCtx, 1, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	orders := page.Data.([]domain.OrderDTO)
	require.Len(t, orders, 1)
	assert.Equal(t, own.ID, orders[0].ID)

	all, err := f.svc.List(f.ctx, 1, 20, &domain.OrderFilters{Search: "zl-4"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
}

func TestOrderService_Earnings(t *testing.T) {
	f := newOrderFixture(t, domain.ModuleVectra)
	testutil.CreateRate(t, f.db, f.m, "INST", 120)
	settings := repository.NewTechnicianSettingsRepository(f.db)
	require.NoError(t, settings.Upsert(context.Background(), &domain.TechnicianSettings{
		UserID: f.tech.ID, ModuleCode: domain.ModuleVectra, WorkingDaysGoal: 20, RevenueGoal: 5000,
	}))

	for _, number := range []string{"V-50", "V-51"} {
		order := f.assignedOrder(t, number, domain.OrderTypeInstallation)
		_, err := f.svc.Complete(f.ctx, order.ID, &domain.CompleteOrderRequest{
			Status:    domain.OrderStatusCompleted,
			WorkCodes: []domain.WorkCodeInput{{Code: "INST", Quantity: 1}},
		})
		require.NoError(t, err)
	}

	earnings, err := f.svc.Earnings(userContext(f.tech), f.tech.ID, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-10", earnings.Month)
	assert.Equal(t, 2, earnings.CompletedOrders)
	assert.Equal(t, 1, earnings.WorkingDays)
	assert.InDelta(t, 240.0, earnings.Amount, 0.001)
	assert.Equal(t, 20, earnings.WorkingDaysGoal)

	_, err = f.svc.Earnings(userContext(f.tech), f.admin.ID, time.Now())
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestOrderService_Catalog(t *testing.T) {
	db := testutil.SetupTestDB(t)
	m := testutil.MustModule(t, domain.ModuleOPL)
	svc := createOrderService(db, m, nil)

	_, err := service.NewSeedService(db, map[domain.ModuleCode]service.SeedCatalog{
		domain.ModuleOPL: {
			Rates:     []domain.RateDefinition{{Code: "W1", Amount: 150}},
			Materials: []domain.MaterialDefinition{{Name: "Optical socket", Unit: "szt", Price: 14}, {Name: "Cable clips", Unit: "szt", Price: 0.1}},
		},
	}, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	catalog, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.Rates, 1)
	assert.Equal(t, 150.0, catalog.Rates[0].Amount)
	require.Len(t, catalog.Materials, 2)
	assert.Equal(t, "Cable clips", catalog.Materials[0].Name)
}
