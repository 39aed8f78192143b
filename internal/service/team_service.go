package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SuggestPartner returns the partner of technicianID in the first active team containing
// them, or nil. Inactive teams are skipped.
func SuggestPartner(teams []domain.Team, technicianID uuid.UUID) *uuid.UUID {
	for i := range teams {
		if !teams[i].Active {
			continue
		}
		if partner := teams[i].Partner(technicianID); partner != nil {
			return partner
		}
	}
	return nil
}

// TeamService manages technician pairings
type TeamService struct {
	teamRepo   *repository.TeamRepository
	userRepo   *repository.UserRepository
	accessRepo *repository.ModuleAccessRepository
	logger     *zap.Logger
}

func NewTeamService(
	teamRepo *repository.TeamRepository,
	userRepo *repository.UserRepository,
	accessRepo *repository.ModuleAccessRepository,
	logger *zap.Logger,
) *TeamService {
	return &TeamService{
		teamRepo:   teamRepo,
		userRepo:   userRepo,
		accessRepo: accessRepo,
		logger:     logger,
	}
}

// Create pairs two technicians of a module
func (s *TeamService) Create(ctx context.Context, module domain.ModuleCode, req *domain.CreateTeamRequest) (*domain.TeamDTO, error) {
	if req.TechnicianAID == req.TechnicianBID {
		return nil, fmt.Errorf("%w: a team needs two different technicians", ErrInvalidInput)
	}
	for _, id := range []uuid.UUID{req.TechnicianAID, req.TechnicianBID} {
		if err := s.checkTechnician(ctx, module, id); err != nil {
			return nil, err
		}
	}

	team := &domain.Team{
		ModuleCode:    module,
		Name:          strings.TrimSpace(req.Name),
		TechnicianAID: req.TechnicianAID,
		TechnicianBID: req.TechnicianBID,
		Active:        true,
	}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	s.logger.Info("team created",
		zap.String("team_id", team.ID.String()),
		zap.String("module", string(module)))

	dto := mapper.ToTeamDTO(team)
	return &dto, nil
}

func (s *TeamService) checkTechnician(ctx context.Context, module domain.ModuleCode, id uuid.UUID) error {
	return checkModuleTechnician(ctx, s.userRepo, s.accessRepo, module, id)
}

// checkModuleTechnician ensures id is an unblocked technician with an active sub-profile in module
func checkModuleTechnician(ctx context.Context, users *repository.UserRepository, access *repository.ModuleAccessRepository, module domain.ModuleCode, id uuid.UUID) error {
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: technician %s not found", ErrInvalidInput, id)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != domain.RoleTechnician || user.IsBlocked {
		return fmt.Errorf("%w: user %s is not an active technician", ErrInvalidInput, id)
	}
	active, err := access.IsActive(ctx, id, module)
	if err != nil {
		return fmt.Errorf("failed to check module access: %w", err)
	}
	if !active {
		return fmt.Errorf("%w: technician %s has no active %s sub-profile", ErrInvalidInput, id, module)
	}
	return nil
}

// Deactivate deactivates a team of the module
func (s *TeamService) Deactivate(ctx context.Context, module domain.ModuleCode, id uuid.UUID) error {
	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil || team.ModuleCode != module {
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: team not found", ErrNotFound)
		}
		return fmt.Errorf("failed to get team: %w", err)
	}
	return s.teamRepo.SetActive(ctx, id, false)
}

// List returns the teams of a module
func (s *TeamService) List(ctx context.Context, module domain.ModuleCode, activeOnly bool) ([]domain.TeamDTO, error) {
	teams, err := s.teamRepo.ListByModule(ctx, module, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	dtos := make([]domain.TeamDTO, len(teams))
	for i := range teams {
		dtos[i] = mapper.ToTeamDTO(&teams[i])
	}
	return dtos, nil
}

// SuggestedPartner returns the suggested partner of a technician in the module
func (s *TeamService) SuggestedPartner(ctx context.Context, module domain.ModuleCode, technicianID uuid.UUID) (*domain.SuggestedPartnerDTO, error) {
	teams, err := s.teamRepo.ListForTechnician(ctx, module, technicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return &domain.SuggestedPartnerDTO{
		TechnicianID: technicianID,
		PartnerID:    SuggestPartner(teams, technicianID),
	}, nil
}
