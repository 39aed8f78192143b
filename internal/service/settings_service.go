package service

import (
	"context"
	"fmt"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettingsService manages the monthly goals of technicians
type SettingsService struct {
	settingsRepo *repository.TechnicianSettingsRepository
	logger       *zap.Logger
}

func NewSettingsService(settingsRepo *repository.TechnicianSettingsRepository, logger *zap.Logger) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo, logger: logger}
}

// Get returns the goals of a technician in a module; unsaved goals are zero
func (s *SettingsService) Get(ctx context.Context, userID uuid.UUID, module domain.ModuleCode) (*domain.TechnicianSettingsDTO, error) {
	if err := canAccessSettings(ctx, userID); err != nil {
		return nil, err
	}
	settings, err := s.settingsRepo.Get(ctx, userID, module)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if settings == nil {
		settings = &domain.TechnicianSettings{UserID: userID, ModuleCode: module}
	}
	dto := mapper.ToTechnicianSettingsDTO(settings)
	return &dto, nil
}

// Update saves the goals. Only the technician and administrators may change them.
func (s *SettingsService) Update(ctx context.Context, userID uuid.UUID, module domain.ModuleCode, req *domain.UpdateTechnicianSettingsRequest) (*domain.TechnicianSettingsDTO, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() && user.UserID != userID {
		return nil, ErrForbidden
	}

	settings := &domain.TechnicianSettings{
		UserID:          userID,
		ModuleCode:      module,
		WorkingDaysGoal: req.WorkingDaysGoal,
		RevenueGoal:     req.RevenueGoal,
	}
	if err := s.settingsRepo.Upsert(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	s.logger.Info("technician settings updated",
		zap.String("user_id", userID.String()),
		zap.String("module", string(module)))

	return s.Get(ctx, userID, module)
}

// canAccessSettings allows the technician and staff to read goals
func canAccessSettings(ctx context.Context, userID uuid.UUID) error {
	user, err := actor(ctx)
	if err != nil {
		return err
	}
	if user.IsSystem || user.IsStaff() || user.UserID == userID {
		return nil
	}
	return ErrForbidden
}
