package handler

import (
	"net/http"
	"strconv"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UserHandler serves user, module access and location administration
type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// Me godoc
// @Summary Current user
// @Description Returns the caller with the role capabilities resolved for the request
// @Tags Users
// @Produce json
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Success 200 {object} domain.MeDTO
// @Failure 401 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/me [get]
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.userService.Me(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "get current user", err)
		return
	}
	respondJSON(w, http.StatusOK, me)
}

// List godoc
// @Summary List users
// @Description Paginated users filtered by role, module, blocked flag and search
// @Tags Users
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param search query string false "Search in name and email"
// @Param role query string false "Filter by role" Enums(ADMIN, COORDINATOR, WAREHOUSEMAN, TECHNICIAN)
// @Param module query string false "Filter by active module"
// @Param blocked query bool false "Filter by blocked flag"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.UserDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users [get]
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filters := &repository.UserFilters{Search: q.Get("search")}
	if role := q.Get("role"); role != "" {
		rl := domain.UserRole(role)
		filters.Role = &rl
	}
	if module := q.Get("module"); module != "" {
		m := domain.ModuleCode(module)
		filters.Module = &m
	}
	if blocked := q.Get("blocked"); blocked != "" {
		b, err := strconv.ParseBool(blocked)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, "blocked must be true or false")
			return
		}
		filters.IsBlocked = &b
	}

	result, err := h.userService.List(r.Context(), page, pageSize, filters)
	if err != nil {
		respondServiceError(w, h.logger, "list users", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get user
// @Description Get a user by ID
// @Tags Users
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Success 200 {object} domain.UserDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/{id} [get]
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get user", err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Create godoc
// @Summary Create user
// @Description Creates a user with role, modules and locations and sends the account email
// @Tags Users
// @Accept json
// @Produce json
// @Param request body domain.CreateUserRequest true "Request body"
// @Success 201 {object} domain.UserDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users [post]
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.userService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "create user", err)
		return
	}
	w.Header().Set("Location", "/api/v1/core/users/"+user.ID.String())
	respondJSON(w, http.StatusCreated, user)
}

// ListModuleAccess godoc
// @Summary List module access
// @Description Module access records of a user, active and deactivated
// @Tags Users
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Success 200 {array} domain.ModuleAccessDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/{id}/modules [get]
func (h *UserHandler) ListModuleAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	access, err := h.userService.ListModuleAccess(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "list module access", err)
		return
	}
	respondJSON(w, http.StatusOK, access)
}

// SyncModules godoc
// @Summary Sync module access
// @Description Activates the requested modules and deactivates the rest
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Param request body domain.SyncModulesRequest true "Request body"
// @Success 200 {array} domain.ModuleAccessDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/{id}/modules [put]
func (h *UserHandler) SyncModules(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.SyncModulesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	access, err := h.userService.SyncModules(r.Context(), id, req.Modules)
	if err != nil {
		respondServiceError(w, h.logger, "sync modules", err)
		return
	}
	respondJSON(w, http.StatusOK, access)
}

// DeactivateModule godoc
// @Summary Deactivate module access
// @Description Deactivates one module for a user. Repeating the call keeps the first deactivation time.
// @Tags Users
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Param module path string true "Module code" Enums(vectra, opl)
// @Success 200 {object} domain.ModuleAccessDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/{id}/modules/{module} [delete]
func (h *UserHandler) DeactivateModule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	code := domain.ModuleCode(chi.URLParam(r, "module"))
	if _, known := domain.ModuleNames[code]; !known {
		respondWithError(w, http.StatusNotFound, domain.CodeNotFound, "unknown module: "+string(code))
		return
	}
	access, err := h.userService.DeactivateModule(r.Context(), id, code)
	if err != nil {
		respondServiceError(w, h.logger, "deactivate module", err)
		return
	}
	respondJSON(w, http.StatusOK, access)
}

// SetLocations godoc
// @Summary Set user locations
// @Description Replaces the warehouse locations assigned to a user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Param request body domain.SetLocationsRequest true "Request body"
// @Success 200 {object} domain.UserDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/{id}/locations [put]
func (h *UserHandler) SetLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.SetLocationsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.userService.SetLocations(r.Context(), id, req.LocationIDs)
	if err != nil {
		respondServiceError(w, h.logger, "set locations", err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// SetBlocked godoc
// @Summary Block or unblock user
// @Description Blocked users can no longer authenticate
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Param request body domain.SetBlockedRequest true "Request body"
// @Success 200 {object} domain.UserDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/users/{id}/blocked [put]
func (h *UserHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.SetBlockedRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.userService.SetBlocked(r.Context(), id, req.Blocked)
	if err != nil {
		respondServiceError(w, h.logger, "set blocked", err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// ListTechnicians godoc
// @Summary List technicians
// @Description Technicians with active access to the module
// @Tags Modules
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Success 200 {array} domain.UserDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/technicians [get]
func (h *UserHandler) ListTechnicians(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	users, err := h.userService.ListTechnicians(r.Context(), m.Code)
	if err != nil {
		respondServiceError(w, h.logger, "list technicians", err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// ListModules godoc
// @Summary List modules
// @Description Modules with their order types and failure reasons
// @Tags Modules
// @Produce json
// @Success 200 {array} domain.ModuleDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules [get]
func (h *UserHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, mapper.ToModuleDTOs())
}

// ListLocations godoc
// @Summary List locations
// @Description All warehouse locations
// @Tags Locations
// @Produce json
// @Success 200 {array} domain.LocationDTO
// @Failure 401 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/locations [get]
func (h *UserHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.userService.ListLocations(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list locations", err)
		return
	}
	respondJSON(w, http.StatusOK, locations)
}

// CreateLocation godoc
// @Summary Create location
// @Description Creates a warehouse location
// @Tags Locations
// @Accept json
// @Produce json
// @Param request body domain.CreateLocationRequest true "Request body"
// @Success 201 {object} domain.LocationDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/locations [post]
func (h *UserHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLocationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	location, err := h.userService.CreateLocation(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "create location", err)
		return
	}
	respondJSON(w, http.StatusCreated, location)
}
