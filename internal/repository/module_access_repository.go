package repository

import (
	"context"
	"errors"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModuleAccessRepository stores the per-module activation records of users
type ModuleAccessRepository struct {
	db *gorm.DB
}

func NewModuleAccessRepository(db *gorm.DB) *ModuleAccessRepository {
	return &ModuleAccessRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ModuleAccessRepository) WithTx(tx *gorm.DB) *ModuleAccessRepository {
	return &ModuleAccessRepository{db: tx}
}

// ListForUser returns all records of a user, active or not
func (r *ModuleAccessRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.ModuleAccess, error) {
	var records []domain.ModuleAccess
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("module_code ASC").
		Find(&records).Error
	return records, err
}

// GetForUpdate returns the record for user and module with a row lock, or nil when absent
func (r *ModuleAccessRepository) GetForUpdate(ctx context.Context, userID uuid.UUID, code domain.ModuleCode) (*domain.ModuleAccess, error) {
	var record domain.ModuleAccess
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND module_code = ?", userID, code).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IsActive reports whether the user has an active sub-profile in the module
func (r *ModuleAccessRepository) IsActive(ctx context.Context, userID uuid.UUID, code domain.ModuleCode) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ModuleAccess{}).
		Where("user_id = ? AND module_code = ? AND active = ?", userID, code, true).
		Count(&count).Error
	return count > 0, err
}

func (r *ModuleAccessRepository) Create(ctx context.Context, record *domain.ModuleAccess) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *ModuleAccessRepository) Save(ctx context.Context, record *domain.ModuleAccess) error {
	return r.db.WithContext(ctx).Save(record).Error
}
