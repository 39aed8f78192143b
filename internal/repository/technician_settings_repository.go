package repository

import (
	"context"
	"errors"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TechnicianSettingsRepository struct {
	db *gorm.DB
}

func NewTechnicianSettingsRepository(db *gorm.DB) *TechnicianSettingsRepository {
	return &TechnicianSettingsRepository{db: db}
}

// Get returns the settings of a technician in a module, or nil when none were saved
func (r *TechnicianSettingsRepository) Get(ctx context.Context, userID uuid.UUID, module domain.ModuleCode) (*domain.TechnicianSettings, error) {
	var settings domain.TechnicianSettings
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND module_code = ?", userID, module).
		First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert inserts or updates the goals keyed by user and module
func (r *TechnicianSettingsRepository) Upsert(ctx context.Context, settings *domain.TechnicianSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "module_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"working_days_goal", "revenue_goal", "updated_at"}),
	}).Create(settings).Error
}
