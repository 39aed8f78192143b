// Package testutil provides database fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/database"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database with every table migrated
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given role, module access and locations
func CreateUser(t *testing.T, db *gorm.DB, role domain.UserRole, modules []domain.ModuleCode, locations ...uuid.UUID) *domain.User {
	t.Helper()

	user := &domain.User{
		Name:  string(role) + " " + uuid.NewString()[:8],
		Email: uuid.NewString() + "@example.com",
		Role:  role,
	}
	require.NoError(t, db.Omit("ModuleAccess", "Locations").Create(user).Error)

	now := time.Now().UTC()
	for _, code := range modules {
		access := &domain.ModuleAccess{UserID: user.ID, ModuleCode: code, Active: true, ActivatedAt: now}
		require.NoError(t, db.Create(access).Error)
		user.ModuleAccess = append(user.ModuleAccess, *access)
	}
	for i, loc := range locations {
		ul := &domain.UserLocation{UserID: user.ID, LocationID: loc, CreatedAt: now.Add(time.Duration(i) * time.Second)}
		require.NoError(t, db.Omit("Location").Create(ul).Error)
		user.Locations = append(user.Locations, *ul)
	}
	return user
}

// CreateLocation inserts a warehouse location
func CreateLocation(t *testing.T, db *gorm.DB, name string) *domain.Location {
	t.Helper()
	loc := &domain.Location{Name: name}
	require.NoError(t, db.Create(loc).Error)
	return loc
}

// CreateStockItem inserts a warehouse row into the module's table
func CreateStockItem(t *testing.T, db *gorm.DB, m *domain.ModuleDescriptor, item *domain.StockItem) *domain.StockItem {
	t.Helper()
	if item.Status == "" {
		item.Status = domain.StockStatusAvailable
		if item.AssignedToID != nil {
			item.Status = domain.StockStatusAssigned
		}
	}
	if item.ItemType == domain.StockItemDevice && item.Quantity == 0 {
		item.Quantity = 1
	}
	require.NoError(t, db.Table(m.Tables.Warehouse).Create(item).Error)
	return item
}

// CreateOrder inserts an order attempt into the module's table
func CreateOrder(t *testing.T, db *gorm.DB, m *domain.ModuleDescriptor, order *domain.Order) *domain.Order {
	t.Helper()
	if order.Type == "" {
		order.Type = domain.OrderTypeInstallation
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.AttemptNumber == 0 {
		order.AttemptNumber = 1
	}
	if order.Date.IsZero() {
		order.Date = time.Now().UTC()
	}
	if order.CreatedByID == uuid.Nil {
		order.CreatedByID = uuid.New()
	}
	require.NoError(t, db.Table(m.Tables.Orders).Create(order).Error)
	return order
}

// CreateRate inserts a rate definition into the module's table
func CreateRate(t *testing.T, db *gorm.DB, m *domain.ModuleDescriptor, code string, amount float64) {
	t.Helper()
	rate := &domain.RateDefinition{Code: code, Description: code, Amount: amount}
	require.NoError(t, db.Table(m.Tables.RateDefinitions).Create(rate).Error)
}

// MustModule returns a module descriptor or fails the test
func MustModule(t *testing.T, code domain.ModuleCode) *domain.ModuleDescriptor {
	t.Helper()
	m, err := domain.LookupModule(code)
	require.NoError(t, err)
	return m
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
