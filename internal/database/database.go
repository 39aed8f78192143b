package database

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection for the configured driver
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	case "postgres", "":
		dialector = postgres.Open(cfg.ConnectionString())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite serializes writers; a single connection avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Database connection established",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return db, nil
}

// AutoMigrate creates the shared tables and every module's tables from the models.
// Production schemas are managed by goose migrations; this is used for sqlite and tests.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Module{},
		&domain.User{},
		&domain.Location{},
		&domain.UserLocation{},
		&domain.ModuleAccess{},
		&domain.Team{},
		&domain.TechnicianSettings{},
		&domain.AuditLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate shared tables: %w", err)
	}

	for _, m := range domain.Modules() {
		if err := MigrateModule(db, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateModule creates the per-module tables bound by the descriptor
func MigrateModule(db *gorm.DB, m *domain.ModuleDescriptor) error {
	tables := []struct {
		name  string
		model interface{}
	}{
		{m.Tables.Orders, &domain.Order{}},
		{m.Tables.OrderWorkCodes, &domain.OrderWorkCode{}},
		{m.Tables.OrderSettlements, &domain.OrderSettlement{}},
		{m.Tables.RateDefinitions, &domain.RateDefinition{}},
		{m.Tables.Warehouse, &domain.StockItem{}},
		{m.Tables.WarehouseHistory, &domain.StockHistory{}},
		{m.Tables.MaterialDefinitions, &domain.MaterialDefinition{}},
	}
	for _, t := range tables {
		if err := db.Table(t.name).AutoMigrate(t.model); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", t.name, err)
		}
	}
	return nil
}

// HealthCheck pings the database
func HealthCheck(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Stats is a snapshot of the connection pool
type Stats struct {
	OpenConnections int   `json:"openConnections"`
	InUse           int   `json:"inUse"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"waitCount"`
	WaitDurationMs  int64 `json:"waitDurationMs"`
}

// HealthCheckWithStats pings the database and returns pool statistics
func HealthCheckWithStats(ctx context.Context, db *gorm.DB) (*Stats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	s := sqlDB.Stats()
	return &Stats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		WaitCount:       s.WaitCount,
		WaitDurationMs:  s.WaitDuration.Milliseconds(),
	}, nil
}
