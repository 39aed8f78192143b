package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleStatements_UseDescriptorTables(t *testing.T) {
	for _, m := range domain.Modules() {
		ddl := strings.Join(ModuleStatements(m), "\n")
		for _, table := range dropOrder(m) {
			assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+table+" (", "module %s", m.Code)
		}
		assert.NotContains(t, ddl, "%!", "module %s", m.Code)
	}
}

func TestModuleStatements_DoNotShareTables(t *testing.T) {
	vectra := strings.Join(ModuleStatements(testModule(t, domain.ModuleVectra)), "\n")
	assert.NotContains(t, vectra, "opl_")
}

func TestFS_ContainsSharedTables(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	assert.Contains(t, files, "00001_shared_tables.sql")

	data, err := FS.ReadFile("00001_shared_tables.sql")
	require.NoError(t, err)
	sql := string(data)
	assert.Contains(t, sql, "-- +goose Up")
	assert.Contains(t, sql, "-- +goose Down")
	for code := range domain.ModuleNames {
		assert.Contains(t, sql, "('"+string(code)+"'")
	}
}

func testModule(t *testing.T, code domain.ModuleCode) *domain.ModuleDescriptor {
	t.Helper()
	m, err := domain.LookupModule(code)
	require.NoError(t, err)
	return m
}
