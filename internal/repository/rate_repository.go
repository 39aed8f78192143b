package repository

import (
	"context"
	"errors"

	"github.com/fieldcrm/crm-api/internal/domain"
	"gorm.io/gorm"
)

// RateRepository reads and writes the rate and material catalogs of one module
type RateRepository struct {
	db     *gorm.DB
	module *domain.ModuleDescriptor
}

func NewRateRepository(db *gorm.DB, module *domain.ModuleDescriptor) *RateRepository {
	return &RateRepository{db: db, module: module}
}

// WithTx returns a repository bound to tx
func (r *RateRepository) WithTx(tx *gorm.DB) *RateRepository {
	return &RateRepository{db: tx, module: r.module}
}

// Module returns the module the repository is bound to
func (r *RateRepository) Module() *domain.ModuleDescriptor {
	return r.module
}

func (r *RateRepository) rates(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.module.Tables.RateDefinitions)
}

func (r *RateRepository) materials(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.module.Tables.MaterialDefinitions)
}

func (r *RateRepository) ListRates(ctx context.Context) ([]domain.RateDefinition, error) {
	var rates []domain.RateDefinition
	err := r.rates(ctx).Order("code ASC").Find(&rates).Error
	return rates, err
}

// GetRatesByCodes returns the rate definitions of codes keyed by code
func (r *RateRepository) GetRatesByCodes(ctx context.Context, codes []string) (map[string]domain.RateDefinition, error) {
	result := make(map[string]domain.RateDefinition, len(codes))
	if len(codes) == 0 {
		return result, nil
	}
	var rates []domain.RateDefinition
	if err := r.rates(ctx).Where("code IN ?", codes).Find(&rates).Error; err != nil {
		return nil, err
	}
	for _, rate := range rates {
		result[rate.Code] = rate
	}
	return result, nil
}

// CreateRateIfAbsent inserts the rate unless its code exists. It reports whether a row was created.
func (r *RateRepository) CreateRateIfAbsent(ctx context.Context, rate *domain.RateDefinition) (bool, error) {
	var existing domain.RateDefinition
	err := r.rates(ctx).Where("code = ?", rate.Code).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return true, r.rates(ctx).Create(rate).Error
}

// UpsertRate inserts the rate or updates the amount and description of an existing code.
// It reports whether a row was created.
func (r *RateRepository) UpsertRate(ctx context.Context, rate *domain.RateDefinition) (bool, error) {
	var existing domain.RateDefinition
	err := r.rates(ctx).Where("code = ?", rate.Code).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, r.rates(ctx).Create(rate).Error
	}
	if err != nil {
		return false, err
	}
	return false, r.rates(ctx).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"amount":      rate.Amount,
			"description": rate.Description,
		}).Error
}

func (r *RateRepository) ListMaterials(ctx context.Context) ([]domain.MaterialDefinition, error) {
	var materials []domain.MaterialDefinition
	err := r.materials(ctx).Order("name ASC").Find(&materials).Error
	return materials, err
}

// CreateMaterialIfAbsent inserts the material unless its name exists. It reports whether a row was created.
func (r *RateRepository) CreateMaterialIfAbsent(ctx context.Context, material *domain.MaterialDefinition) (bool, error) {
	var existing domain.MaterialDefinition
	err := r.materials(ctx).Where("name = ?", material.Name).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return true, r.materials(ctx).Create(material).Error
}
