// Package migrations holds the goose migrations of the CRM schema. Shared tables are
// plain SQL; the per-module tables are generated from the module descriptors.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

func init() {
	goose.AddNamedMigrationContext("00002_module_tables.go", upModuleTables, downModuleTables)
}

// Setup points goose at the embedded migrations for dialect
func Setup(dialect string) error {
	goose.SetBaseFS(FS)
	return goose.SetDialect(dialect)
}

func upModuleTables(ctx context.Context, tx *sql.Tx) error {
	for _, m := range domain.Modules() {
		for _, stmt := range ModuleStatements(m) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("module %s: %w", m.Code, err)
			}
		}
	}
	return nil
}

func downModuleTables(ctx context.Context, tx *sql.Tx) error {
	for _, m := range domain.Modules() {
		for _, table := range dropOrder(m) {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("module %s: %w", m.Code, err)
			}
		}
	}
	return nil
}

func dropOrder(m *domain.ModuleDescriptor) []string {
	t := m.Tables
	return []string{
		t.WarehouseHistory,
		t.Warehouse,
		t.OrderSettlements,
		t.OrderWorkCodes,
		t.Orders,
		t.RateDefinitions,
		t.MaterialDefinitions,
	}
}

// ModuleStatements returns the postgres DDL creating the tables bound by the descriptor
func ModuleStatements(m *domain.ModuleDescriptor) []string {
	t := m.Tables
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id                UUID PRIMARY KEY,
    order_number      VARCHAR(100) NOT NULL,
    type              VARCHAR(20) NOT NULL,
    status            VARCHAR(20) NOT NULL,
    operator          VARCHAR(100),
    assigned_to_id    UUID REFERENCES users (id),
    date              TIMESTAMPTZ NOT NULL,
    time_slot         VARCHAR(20),
    failure_reason    VARCHAR(100),
    notes             TEXT,
    attempt_number    INTEGER NOT NULL DEFAULT 1,
    previous_order_id UUID REFERENCES %s (id),
    city              VARCHAR(100),
    street            VARCHAR(200),
    postal_code       VARCHAR(20),
    latitude          DOUBLE PRECISION,
    longitude         DOUBLE PRECISION,
    completed_at      TIMESTAMPTZ,
    created_by_id     UUID NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.Orders, t.Orders),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_number_attempt ON %s (order_number, attempt_number)`, t.Orders, t.Orders),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_single_retry ON %s (previous_order_id) WHERE previous_order_id IS NOT NULL`, t.Orders, t.Orders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_assignee_date ON %s (assigned_to_id, date)`, t.Orders, t.Orders),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id          UUID PRIMARY KEY,
    order_id    UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
    code        VARCHAR(50) NOT NULL,
    quantity    INTEGER NOT NULL DEFAULT 1,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.OrderWorkCodes, t.Orders),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id          UUID PRIMARY KEY,
    order_id    UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
    rate_code   VARCHAR(50) NOT NULL,
    quantity    INTEGER NOT NULL DEFAULT 1,
    amount      DECIMAL(12,2) NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.OrderSettlements, t.Orders),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id          UUID PRIMARY KEY,
    code        VARCHAR(50) NOT NULL,
    description VARCHAR(255),
    amount      DECIMAL(12,2) NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.RateDefinitions),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_code ON %s (code)`, t.RateDefinitions, t.RateDefinitions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id              UUID PRIMARY KEY,
    name            VARCHAR(200) NOT NULL,
    material_index  VARCHAR(50),
    unit            VARCHAR(20) NOT NULL DEFAULT 'szt',
    price           DECIMAL(12,2) NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.MaterialDefinitions),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_name ON %s (name)`, t.MaterialDefinitions, t.MaterialDefinitions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id                UUID PRIMARY KEY,
    item_type         VARCHAR(20) NOT NULL CHECK (item_type IN ('DEVICE', 'MATERIAL')),
    category          VARCHAR(100),
    name              VARCHAR(200) NOT NULL,
    serial_number     VARCHAR(100),
    quantity          INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    price             DECIMAL(12,2) NOT NULL DEFAULT 0,
    assigned_to_id    UUID REFERENCES users (id),
    location_id       UUID REFERENCES locations (id),
    order_id          UUID REFERENCES %s (id),
    status            VARCHAR(30) NOT NULL,
    transfer_pending  BOOLEAN NOT NULL DEFAULT FALSE,
    transfer_to_id    UUID REFERENCES users (id),
    created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (item_type <> 'DEVICE' OR quantity = 1)
)`, t.Warehouse, t.Orders),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_serial ON %s (serial_number) WHERE serial_number IS NOT NULL`, t.Warehouse, t.Warehouse),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_holder ON %s (assigned_to_id, name)`, t.Warehouse, t.Warehouse),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id                       UUID PRIMARY KEY,
    warehouse_item_id        UUID NOT NULL REFERENCES %s (id),
    action                   VARCHAR(30) NOT NULL,
    quantity                 INTEGER NOT NULL DEFAULT 1,
    from_holder_id           UUID,
    to_holder_id             UUID,
    order_id                 UUID,
    location_id              UUID,
    performed_by_id          UUID NOT NULL,
    returned_to_operator_at  TIMESTAMPTZ,
    notes                    TEXT,
    action_date              TIMESTAMPTZ NOT NULL,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.WarehouseHistory, t.Warehouse),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_item ON %s (warehouse_item_id, action_date)`, t.WarehouseHistory, t.WarehouseHistory),
	}
}
