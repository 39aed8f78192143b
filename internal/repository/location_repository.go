package repository

import (
	"context"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *LocationRepository) WithTx(tx *gorm.DB) *LocationRepository {
	return &LocationRepository{db: tx}
}

func (r *LocationRepository) Create(ctx context.Context, location *domain.Location) error {
	return r.db.WithContext(ctx).Create(location).Error
}

func (r *LocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Location, error) {
	var location domain.Location
	if err := r.db.WithContext(ctx).First(&location, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *LocationRepository) List(ctx context.Context) ([]domain.Location, error) {
	var locations []domain.Location
	err := r.db.WithContext(ctx).Order("name ASC").Find(&locations).Error
	return locations, err
}

// CountByIDs returns how many of ids exist
func (r *LocationRepository) CountByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Location{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

// ReplaceForUser replaces the location assignments of a user, keeping the given order
// as the assignment order.
func (r *LocationRepository) ReplaceForUser(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&domain.UserLocation{}).Error; err != nil {
		return err
	}
	base := time.Now().UTC()
	for i, id := range ids {
		link := domain.UserLocation{
			UserID:     userID,
			LocationID: id,
			CreatedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := db.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}
