package datawarehouse_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/datawarehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient_DisabledConfig(t *testing.T) {
	logger := zap.NewNop()

	client, err := datawarehouse.NewClient(nil, logger)
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = datawarehouse.NewClient(&config.DataWarehouseConfig{Enabled: false}, logger)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewClient_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.DataWarehouseConfig
	}{
		{"missing URL", &config.DataWarehouseConfig{Enabled: true, User: "user", Password: "pass"}},
		{"missing user", &config.DataWarehouseConfig{Enabled: true, URL: "host:1433/db", Password: "pass"}},
		{"missing password", &config.DataWarehouseConfig{Enabled: true, URL: "host:1433/db", User: "user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := datawarehouse.NewClient(tt.cfg, zap.NewNop())
			assert.NoError(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestNilClient(t *testing.T) {
	var client *datawarehouse.Client

	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.Close())
	assert.Equal(t, "disabled", client.HealthCheck(context.Background()).Status)

	_, err := client.FetchRateCard(context.Background(), "opl", time.Now())
	assert.ErrorIs(t, err, datawarehouse.ErrNotInitialized)
}

func TestRateCardTableName(t *testing.T) {
	table, err := datawarehouse.RateCardTableName("opl")
	require.NoError(t, err)
	assert.Equal(t, "dbo.opl_rate_card", table)

	_, err = datawarehouse.RateCardTableName("hr")
	assert.Error(t, err)
}

func TestFetchRateCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := datawarehouse.NewClientFromDB(db, time.Second, zap.NewNop())
	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"code", "description", "amount"}).
		AddRow(" w1 ", "Installation", 120.5).
		AddRow("DMR", nil, 15.0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT code, description, amount FROM dbo.opl_rate_card")).
		WithArgs(at).
		WillReturnRows(rows)

	entries, err := client.FetchRateCard(context.Background(), "opl", at)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, datawarehouse.RateCardEntry{Code: "W1", Description: "Installation", Amount: 120.5}, entries[0])
	assert.Equal(t, "", entries[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRateCard_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := datawarehouse.NewClientFromDB(db, 0, zap.NewNop())
	mock.ExpectQuery("SELECT code").WillReturnError(errors.New("connection reset"))

	_, err = client.FetchRateCard(context.Background(), "vectra", time.Now())
	assert.ErrorContains(t, err, "connection reset")

	_, err = client.FetchRateCard(context.Background(), "unknown", time.Now())
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	client := datawarehouse.NewClientFromDB(db, time.Second, zap.NewNop())

	mock.ExpectPing()
	assert.Equal(t, "healthy", client.HealthCheck(context.Background()).Status)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	status := client.HealthCheck(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "down", status.Error)
}
