package repository

import (
	"context"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserFilters contains filter options for listing users
type UserFilters struct {
	Role      *domain.UserRole
	Module    *domain.ModuleCode
	IsBlocked *bool
	Search    string
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDWithAccess loads the user with module access records and locations in assignment order
func (r *UserRepository) GetByIDWithAccess(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).
		Preload("ModuleAccess", func(db *gorm.DB) *gorm.DB {
			return db.Order("activated_at ASC")
		}).
		Preload("Locations", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "LOWER(email) = LOWER(?)", email).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context, page, pageSize int, filters *UserFilters) ([]domain.User, int64, error) {
	var users []domain.User
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.User{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("ModuleAccess").
		Preload("Locations", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Order("name ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&users).Error

	return users, total, err
}

// ListActiveTechnicians returns unblocked technicians with an active sub-profile in the module
func (r *UserRepository) ListActiveTechnicians(ctx context.Context, module domain.ModuleCode) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_blocked = ?", domain.RoleTechnician, false).
		Where("id IN (?)", r.db.Model(&domain.ModuleAccess{}).
			Select("user_id").
			Where("module_code = ? AND active = ?", module, true)).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

// GetNames returns the display names of users keyed by id
func (r *UserRepository) GetNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []domain.User
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

// SetBlocked flips the blocked flag of a user
func (r *UserRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	result := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_blocked", blocked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) applyFilters(query *gorm.DB, filters *UserFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.Role != nil {
		query = query.Where("role = ?", *filters.Role)
	}
	if filters.IsBlocked != nil {
		query = query.Where("is_blocked = ?", *filters.IsBlocked)
	}
	if filters.Module != nil {
		query = query.Where("id IN (?)", r.db.Model(&domain.ModuleAccess{}).
			Select("user_id").
			Where("module_code = ? AND active = ?", *filters.Module, true))
	}
	return ApplySearch(query, filters.Search, "name", "email")
}
