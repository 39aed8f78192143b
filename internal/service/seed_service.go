package service

import (
	"context"
	"fmt"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedCatalog is the reference data inserted for one module
type SeedCatalog struct {
	Rates     []domain.RateDefinition
	Materials []domain.MaterialDefinition
}

// DefaultSeedCatalogs holds the starting rate cards and material catalogs
var DefaultSeedCatalogs = map[domain.ModuleCode]SeedCatalog{
	domain.ModuleVectra: {
		Rates: []domain.RateDefinition{
			{Code: "INST", Description: "Installation", Amount: 120},
			{Code: "SERV", Description: "Service visit", Amount: 60},
			{Code: "DEC", Description: "Additional decoder", Amount: 25},
			{Code: "MODEM", Description: "Modem installation", Amount: 40},
			{Code: "CABLE", Description: "Cable run per 10 m", Amount: 8},
			{Code: "SOCKET", Description: "Wall socket", Amount: 12},
		},
		Materials: []domain.MaterialDefinition{
			{Name: "Coaxial cable RG6", Index: "VC-001", Unit: "m", Price: 1.2},
			{Name: "F connector", Index: "VC-002", Unit: "szt", Price: 0.4},
			{Name: "Splitter 2-way", Index: "VC-003", Unit: "szt", Price: 6},
			{Name: "Wall socket", Index: "VC-004", Unit: "szt", Price: 9},
		},
	},
	domain.ModuleOPL: {
		Rates: []domain.RateDefinition{
			{Code: "W1", Description: "Installation in a single-family house", Amount: 150},
			{Code: "W2", Description: "Installation in a multi-family building", Amount: 130},
			{Code: "W3", Description: "Installation with riser work", Amount: 180},
			{Code: "W4", Description: "Replacement of terminal equipment", Amount: 70},
			{Code: "W5", Description: "Service of an existing installation", Amount: 60},
			{Code: "W6", Description: "Relocation of the socket", Amount: 90},
			{Code: "P1P", Description: "Reconnection, one service", Amount: 50},
			{Code: "P2P", Description: "Reconnection, two services", Amount: 65},
			{Code: "P3P", Description: "Reconnection, three services", Amount: 80},
			{Code: "PUTD", Description: "Fibre termination without activation", Amount: 110},
			{Code: "DU", Description: "Service without installation", Amount: 45},
			{Code: "I_1P", Description: "Activation, one service", Amount: 30},
			{Code: "I_2P", Description: "Activation, two services", Amount: 45},
			{Code: "I_3P", Description: "Activation, three services", Amount: 60},
			{Code: "DMR", Description: "Multiroom decoder", Amount: 20},
			{Code: "PKU", Description: "Customer socket installation", Amount: 25},
			{Code: "ZJD", Description: "Additional Wi-Fi access point", Amount: 20},
			{Code: "ZJK", Description: "Additional cable run", Amount: 15},
			{Code: "ZJN", Description: "Additional network socket", Amount: 15},
			{Code: "ND", Description: "Decoder replacement", Amount: 20},
			{Code: "UMZ", Description: "Customer device configuration", Amount: 15},
		},
		Materials: []domain.MaterialDefinition{
			{Name: "Fibre drop cable", Index: "OPL-001", Unit: "m", Price: 1.8},
			{Name: "Optical socket", Index: "OPL-002", Unit: "szt", Price: 14},
			{Name: "Patchcord SC/APC", Index: "OPL-003", Unit: "szt", Price: 5},
			{Name: "Cable clips", Index: "OPL-004", Unit: "szt", Price: 0.1},
		},
	},
}

// SeedService inserts reference data that is missing and leaves existing rows untouched
type SeedService struct {
	db       *gorm.DB
	catalogs map[domain.ModuleCode]SeedCatalog
	logger   *zap.Logger
}

func NewSeedService(db *gorm.DB, catalogs map[domain.ModuleCode]SeedCatalog, logger *zap.Logger) *SeedService {
	return &SeedService{db: db, catalogs: catalogs, logger: logger}
}

// Run seeds modules and the rate and material catalogs of every module in one transaction
func (s *SeedService) Run(ctx context.Context) (*domain.SeedResult, error) {
	result := &domain.SeedResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for code, name := range domain.ModuleNames {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.Module{Code: code, Name: name})
			if res.Error != nil {
				return fmt.Errorf("failed to seed module %s: %w", code, res.Error)
			}
			count(result, res.RowsAffected > 0)
		}

		for _, m := range domain.Modules() {
			catalog, ok := s.catalogs[m.Code]
			if !ok {
				continue
			}
			rates := repository.NewRateRepository(tx, m)
			for _, rate := range catalog.Rates {
				rate := rate
				created, err := rates.CreateRateIfAbsent(ctx, &rate)
				if err != nil {
					return fmt.Errorf("failed to seed rate %s/%s: %w", m.Code, rate.Code, err)
				}
				count(result, created)
			}
			for _, material := range catalog.Materials {
				material := material
				created, err := rates.CreateMaterialIfAbsent(ctx, &material)
				if err != nil {
					return fmt.Errorf("failed to seed material %s/%s: %w", m.Code, material.Name, err)
				}
				count(result, created)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("seed finished", zap.Int("created", result.Created), zap.Int("existing", result.Existing))
	return result, nil
}

func count(result *domain.SeedResult, created bool) {
	if created {
		result.Created++
	} else {
		result.Existing++
	}
}
