package repository

import (
	"context"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TeamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(team).Error
}

func (r *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	var team domain.Team
	if err := r.db.WithContext(ctx).First(&team, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// ListByModule returns the teams of a module, oldest first
func (r *TeamRepository) ListByModule(ctx context.Context, module domain.ModuleCode, activeOnly bool) ([]domain.Team, error) {
	var teams []domain.Team
	query := r.db.WithContext(ctx).Where("module_code = ?", module)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	err := query.Order("created_at ASC").Find(&teams).Error
	return teams, err
}

// ListForTechnician returns every team of the module the technician belongs to, oldest first
func (r *TeamRepository) ListForTechnician(ctx context.Context, module domain.ModuleCode, technicianID uuid.UUID) ([]domain.Team, error) {
	var teams []domain.Team
	err := r.db.WithContext(ctx).
		Where("module_code = ?", module).
		Where("technician_a_id = ? OR technician_b_id = ?", technicianID, technicianID).
		Order("created_at ASC").
		Find(&teams).Error
	return teams, err
}

// SetActive activates or deactivates a team
func (r *TeamRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).Model(&domain.Team{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
