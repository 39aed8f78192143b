package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldcrm/crm-api/internal/datawarehouse"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RateCardSource publishes operator rate cards
type RateCardSource interface {
	FetchRateCard(ctx context.Context, module string, at time.Time) ([]datawarehouse.RateCardEntry, error)
}

// RateSyncService copies operator rate cards into the module rate definitions
type RateSyncService struct {
	source RateCardSource
	db     *gorm.DB
	logger *zap.Logger
}

func NewRateSyncService(source RateCardSource, db *gorm.DB, logger *zap.Logger) *RateSyncService {
	return &RateSyncService{source: source, db: db, logger: logger}
}

// Sync upserts the current rate card of a module. Codes missing from the card are kept.
func (s *RateSyncService) Sync(ctx context.Context, module *domain.ModuleDescriptor) (*domain.SeedResult, error) {
	entries, err := s.source.FetchRateCard(ctx, string(module.Code), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rate card: %w", err)
	}

	result := &domain.SeedResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rates := repository.NewRateRepository(tx, module)
		for _, e := range entries {
			if e.Code == "" || e.Amount < 0 {
				s.logger.Warn("skipping invalid rate card entry",
					zap.String("module", string(module.Code)),
					zap.String("code", e.Code),
					zap.Float64("amount", e.Amount))
				continue
			}
			created, err := rates.UpsertRate(ctx, &domain.RateDefinition{
				Code:        e.Code,
				Description: e.Description,
				Amount:      e.Amount,
			})
			if err != nil {
				return fmt.Errorf("failed to upsert rate %s: %w", e.Code, err)
			}
			count(result, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("rate card synchronized",
		zap.String("module", string(module.Code)),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Existing))
	return result, nil
}
