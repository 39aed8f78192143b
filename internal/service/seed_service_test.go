package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/datawarehouse"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedService_RunIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	catalogs := map[domain.ModuleCode]service.SeedCatalog{
		domain.ModuleOPL: {
			Rates:     []domain.RateDefinition{{Code: "W1", Amount: 150}, {Code: "I_1P", Amount: 30}},
			Materials: []domain.MaterialDefinition{{Name: "Fibre drop cable", Unit: "m", Price: 1.8}},
		},
	}
	svc := service.NewSeedService(db, catalogs, zap.NewNop())

	modules := len(domain.ModuleNames)
	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, modules+3, first.Created)
	assert.Equal(t, 0, first.Existing)

	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, modules+3, second.Existing)

	rates, err := repository.NewRateRepository(db, testutil.MustModule(t, domain.ModuleOPL)).ListRates(context.Background())
	require.NoError(t, err)
	assert.Len(t, rates, 2)
}

func TestDefaultSeedCatalogs_CoverBillingCatalog(t *testing.T) {
	for _, m := range domain.Modules() {
		catalog, ok := service.DefaultSeedCatalogs[m.Code]
		require.True(t, ok, m.Code)
		if m.Billing == nil {
			continue
		}
		priced := make(map[string]bool)
		for _, r := range catalog.Rates {
			priced[r.Code] = true
		}
		for _, code := range m.Billing.Codes() {
			assert.True(t, priced[code], "%s has no seeded rate for %s", m.Code, code)
		}
	}
}

type stubRateCard struct {
	entries []datawarehouse.RateCardEntry
	err     error
	module  string
}

func (s *stubRateCard) FetchRateCard(ctx context.Context, module string, at time.Time) ([]datawarehouse.RateCardEntry, error) {
	s.module = module
	return s.entries, s.err
}

func TestRateSyncService_Sync(t *testing.T) {
	db := testutil.SetupTestDB(t)
	m := testutil.MustModule(t, domain.ModuleVectra)
	testutil.CreateRate(t, db, m, "INST", 100)
	testutil.CreateRate(t, db, m, "LEGACY", 10)

	source := &stubRateCard{entries: []datawarehouse.RateCardEntry{
		{Code: "INST", Description: "Installation", Amount: 125},
		{Code: "SERV", Description: "Service visit", Amount: 60},
		{Code: "", Amount: 1},
	}}
	svc := service.NewRateSyncService(source, db, zap.NewNop())

	result, err := svc.Sync(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "vectra", source.module)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Existing)

	rates, err := repository.NewRateRepository(db, m).GetRatesByCodes(context.Background(), []string{"INST", "SERV", "LEGACY"})
	require.NoError(t, err)
	assert.InDelta(t, 125.0, rates["INST"].Amount, 0.001)
	assert.InDelta(t, 60.0, rates["SERV"].Amount, 0.001)
	assert.Contains(t, rates, "LEGACY")

	source.err = errors.New("warehouse offline")
	_, err = svc.Sync(context.Background(), m)
	assert.ErrorContains(t, err, "warehouse offline")
}
