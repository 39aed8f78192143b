package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mail"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mailer sends templated notifications
type Mailer interface {
	SendTemplate(ctx context.Context, name mail.Template, data any, to ...string) error
	AppURL() string
}

// UserService administers users, their module sub-profiles and location assignments
type UserService struct {
	userRepo     *repository.UserRepository
	accessRepo   *repository.ModuleAccessRepository
	locationRepo *repository.LocationRepository
	mailer       Mailer
	logger       *zap.Logger
	db           *gorm.DB
}

func NewUserService(
	userRepo *repository.UserRepository,
	accessRepo *repository.ModuleAccessRepository,
	locationRepo *repository.LocationRepository,
	mailer Mailer,
	logger *zap.Logger,
	db *gorm.DB,
) *UserService {
	return &UserService{
		userRepo:     userRepo,
		accessRepo:   accessRepo,
		locationRepo: locationRepo,
		mailer:       mailer,
		logger:       logger,
		db:           db,
	}
}

// Create creates a user with module access and locations, then sends a best-effort welcome email
func (s *UserService) Create(ctx context.Context, req *domain.CreateUserRequest) (*domain.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email %s is already registered", ErrConflict, email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	locationIDs := dedupeIDs(req.LocationIDs)
	if err := s.checkLocations(ctx, locationIDs); err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:  strings.TrimSpace(req.Name),
		Email: email,
		Phone: req.Phone,
		Role:  req.Role,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if _, err := syncModuleAccess(ctx, s.accessRepo.WithTx(tx), user.ID, req.Modules); err != nil {
			return err
		}
		if err := s.locationRepo.WithTx(tx).ReplaceForUser(ctx, user.ID, locationIDs); err != nil {
			return fmt.Errorf("failed to assign locations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.userRepo.GetByIDWithAccess(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", created.ID.String()),
		zap.String("role", string(created.Role)))

	s.sendAccountCreated(ctx, created)

	dto := mapper.ToUserDTO(created)
	return &dto, nil
}

func (s *UserService) sendAccountCreated(ctx context.Context, user *domain.User) {
	if s.mailer == nil {
		return
	}
	modules := make([]string, 0, len(user.ModuleAccess))
	for _, code := range user.ActiveModules() {
		modules = append(modules, domain.ModuleNames[code])
	}
	data := mail.AccountCreatedData{
		Name:    user.Name,
		Email:   user.Email,
		Role:    string(user.Role),
		Modules: modules,
		AppURL:  s.mailer.AppURL(),
	}
	if err := s.mailer.SendTemplate(ctx, mail.TemplateAccountCreated, data, user.Email); err != nil {
		if errors.Is(err, mail.ErrConfigurationMissing) {
			s.logger.Debug("mail not configured, skipping account email", zap.String("user_id", user.ID.String()))
			return
		}
		s.logger.Warn("failed to send account email",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	}
}

// GetByID returns a user with module access and locations
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserDTO, error) {
	user, err := s.userRepo.GetByIDWithAccess(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	dto := mapper.ToUserDTO(user)
	return &dto, nil
}

// List returns a page of users
func (s *UserService) List(ctx context.Context, page, pageSize int, filters *repository.UserFilters) (*domain.PaginatedResponse, error) {
	page, pageSize = repository.NormalizePage(page, pageSize)

	users, total, err := s.userRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	dtos := make([]domain.UserDTO, len(users))
	for i := range users {
		dtos[i] = mapper.ToUserDTO(&users[i])
	}
	return paginate(dtos, total, page, pageSize), nil
}

// ListTechnicians returns technicians with an active sub-profile in the module
func (s *UserService) ListTechnicians(ctx context.Context, module domain.ModuleCode) ([]domain.UserDTO, error) {
	users, err := s.userRepo.ListActiveTechnicians(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	dtos := make([]domain.UserDTO, len(users))
	for i := range users {
		dtos[i] = mapper.ToUserDTO(&users[i])
	}
	return dtos, nil
}

// Me returns the current user with the resolved capabilities of the request
func (s *UserService) Me(ctx context.Context) (*domain.MeDTO, error) {
	userCtx, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	caps, err := capabilities(ctx)
	if err != nil {
		return nil, err
	}

	var user domain.UserDTO
	if userCtx.IsSystem {
		user = domain.UserDTO{
			ID:          userCtx.UserID,
			Name:        userCtx.Name,
			Email:       userCtx.Email,
			Role:        userCtx.Role,
			Modules:     []domain.ModuleCode{},
			LocationIDs: []uuid.UUID{},
		}
	} else {
		dto, err := s.GetByID(ctx, userCtx.UserID)
		if err != nil {
			return nil, err
		}
		user = *dto
	}

	return &domain.MeDTO{User: user, Capabilities: caps.ToDTO()}, nil
}

// SyncModules makes exactly the given modules active for the user
func (s *UserService) SyncModules(ctx context.Context, userID uuid.UUID, codes []domain.ModuleCode) ([]domain.ModuleAccessDTO, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var records []domain.ModuleAccess
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		records, err = syncModuleAccess(ctx, s.accessRepo.WithTx(tx), userID, codes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("module access synchronized",
		zap.String("user_id", userID.String()),
		zap.Int("active_modules", countActive(records)))

	return toModuleAccessDTOs(records), nil
}

// DeactivateModule deactivates one sub-profile. Repeating the call changes nothing.
func (s *UserService) DeactivateModule(ctx context.Context, userID uuid.UUID, code domain.ModuleCode) (*domain.ModuleAccessDTO, error) {
	var record *domain.ModuleAccess
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.accessRepo.WithTx(tx)
		var err error
		record, err = repo.GetForUpdate(ctx, userID, code)
		if err != nil {
			return fmt.Errorf("failed to get module access: %w", err)
		}
		if record == nil {
			return fmt.Errorf("%w: user has no %s sub-profile", ErrNotFound, code)
		}
		if !record.Active {
			return nil
		}
		now := time.Now().UTC()
		record.Active = false
		record.DeactivatedAt = &now
		return repo.Save(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	dto := mapper.ToModuleAccessDTO(record)
	return &dto, nil
}

// ListModuleAccess returns every sub-profile record of a user
func (s *UserService) ListModuleAccess(ctx context.Context, userID uuid.UUID) ([]domain.ModuleAccessDTO, error) {
	records, err := s.accessRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list module access: %w", err)
	}
	return toModuleAccessDTOs(records), nil
}

// SetLocations replaces the location assignments of a user
func (s *UserService) SetLocations(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*domain.UserDTO, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	ids = dedupeIDs(ids)
	if err := s.checkLocations(ctx, ids); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.locationRepo.WithTx(tx).ReplaceForUser(ctx, userID, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set locations: %w", err)
	}
	return s.GetByID(ctx, userID)
}

// SetBlocked blocks or unblocks a user. Users cannot block themselves.
func (s *UserService) SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool) (*domain.UserDTO, error) {
	if userCtx, ok := auth.FromContext(ctx); ok && userCtx.UserID == userID && blocked {
		return nil, fmt.Errorf("%w: cannot block your own account", ErrInvalidInput)
	}
	if err := s.userRepo.SetBlocked(ctx, userID, blocked); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	s.logger.Info("user block state changed",
		zap.String("user_id", userID.String()),
		zap.Bool("blocked", blocked))
	return s.GetByID(ctx, userID)
}

// CreateLocation creates a warehouse location
func (s *UserService) CreateLocation(ctx context.Context, req *domain.CreateLocationRequest) (*domain.LocationDTO, error) {
	location := &domain.Location{Name: strings.TrimSpace(req.Name)}
	if err := s.locationRepo.Create(ctx, location); err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	dto := mapper.ToLocationDTO(location)
	return &dto, nil
}

// ListLocations returns every warehouse location
func (s *UserService) ListLocations(ctx context.Context) ([]domain.LocationDTO, error) {
	locations, err := s.locationRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	dtos := make([]domain.LocationDTO, len(locations))
	for i := range locations {
		dtos[i] = mapper.ToLocationDTO(&locations[i])
	}
	return dtos, nil
}

func (s *UserService) checkLocations(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	count, err := s.locationRepo.CountByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check locations: %w", err)
	}
	if int(count) != len(ids) {
		return fmt.Errorf("%w: unknown location", ErrInvalidInput)
	}
	return nil
}

// syncModuleAccess activates codes and deactivates every other active record of the user.
// Must run inside a transaction.
func syncModuleAccess(ctx context.Context, repo *repository.ModuleAccessRepository, userID uuid.UUID, codes []domain.ModuleCode) ([]domain.ModuleAccess, error) {
	wanted := make(map[domain.ModuleCode]bool, len(codes))
	for _, code := range codes {
		if !code.IsValid() {
			return nil, fmt.Errorf("%w: unknown module %q", ErrInvalidInput, code)
		}
		wanted[code] = true
	}

	now := time.Now().UTC()
	for code := range wanted {
		record, err := repo.GetForUpdate(ctx, userID, code)
		if err != nil {
			return nil, fmt.Errorf("failed to get module access: %w", err)
		}
		if record == nil {
			record = &domain.ModuleAccess{UserID: userID, ModuleCode: code, Active: true, ActivatedAt: now}
			if err := repo.Create(ctx, record); err != nil {
				return nil, fmt.Errorf("failed to create module access: %w", err)
			}
			continue
		}
		if record.Active {
			continue
		}
		record.Active = true
		record.ActivatedAt = now
		record.DeactivatedAt = nil
		if err := repo.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to activate module access: %w", err)
		}
	}

	existing, err := repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list module access: %w", err)
	}
	for i := range existing {
		record := &existing[i]
		if wanted[record.ModuleCode] || !record.Active {
			continue
		}
		record.Active = false
		record.DeactivatedAt = &now
		if err := repo.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to deactivate module access: %w", err)
		}
	}
	return existing, nil
}

func toModuleAccessDTOs(records []domain.ModuleAccess) []domain.ModuleAccessDTO {
	dtos := make([]domain.ModuleAccessDTO, len(records))
	for i := range records {
		dtos[i] = mapper.ToModuleAccessDTO(&records[i])
	}
	return dtos
}

func countActive(records []domain.ModuleAccess) int {
	n := 0
	for _, r := range records {
		if r.Active {
			n++
		}
	}
	return n
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func paginate(data interface{}, total int64, page, pageSize int) *domain.PaginatedResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	return &domain.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
