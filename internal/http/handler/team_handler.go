package handler

import (
	"net/http"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/service"
	"go.uber.org/zap"
)

// TeamHandler serves technician pairings and goals
type TeamHandler struct {
	teamService     *service.TeamService
	settingsService *service.SettingsService
	logger          *zap.Logger
}

func NewTeamHandler(teamService *service.TeamService, settingsService *service.SettingsService, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{
		teamService:     teamService,
		settingsService: settingsService,
		logger:          logger,
	}
}

// List godoc
// @Summary List teams
// @Description Teams of the module
// @Tags Teams
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param active query bool false "Only active teams"
// @Success 200 {array} domain.TeamDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/teams [get]
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	teams, err := h.teamService.List(r.Context(), m.Code, r.URL.Query().Get("active") == "true")
	if err != nil {
		respondServiceError(w, h.logger, "list teams", err)
		return
	}
	respondJSON(w, http.StatusOK, teams)
}

// Create godoc
// @Summary Create team
// @Description Pairs two technicians of the module
// @Tags Teams
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param request body domain.CreateTeamRequest true "Request body"
// @Success 201 {object} domain.TeamDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/teams [post]
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	var req domain.CreateTeamRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	team, err := h.teamService.Create(r.Context(), m.Code, &req)
	if err != nil {
		respondServiceError(w, h.logger, "create team", err)
		return
	}
	respondJSON(w, http.StatusCreated, team)
}

// Deactivate godoc
// @Summary Deactivate team
// @Description Deactivated teams are skipped by partner suggestions
// @Tags Teams
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Team ID" format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/teams/{id} [delete]
func (h *TeamHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.teamService.Deactivate(r.Context(), m.Code, id); err != nil {
		respondServiceError(w, h.logger, "deactivate team", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SuggestedPartner godoc
// @Summary Suggested partner
// @Description Partner from the technician's first active team, or null
// @Tags Teams
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param technicianId path string true "Technician ID" format(uuid)
// @Success 200 {object} domain.SuggestedPartnerDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/teams/partner/{technicianId} [get]
func (h *TeamHandler) SuggestedPartner(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	technicianID, ok := uuidParam(w, r, "technicianId")
	if !ok {
		return
	}
	partner, err := h.teamService.SuggestedPartner(r.Context(), m.Code, technicianID)
	if err != nil {
		respondServiceError(w, h.logger, "suggest partner", err)
		return
	}
	respondJSON(w, http.StatusOK, partner)
}

// GetSettings godoc
// @Summary Get technician settings
// @Description Monthly goals of a technician; technicians may only read their own
// @Tags Settings
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param userId path string true "User ID" format(uuid)
// @Success 200 {object} domain.TechnicianSettingsDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/settings/{userId} [get]
func (h *TeamHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "userId")
	if !ok {
		return
	}
	settings, err := h.settingsService.Get(r.Context(), userID, m.Code)
	if err != nil {
		respondServiceError(w, h.logger, "get settings", err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings godoc
// @Summary Update technician settings
// @Description Upserts the monthly goals of a technician
// @Tags Settings
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param userId path string true "User ID" format(uuid)
// @Param request body domain.UpdateTechnicianSettingsRequest true "Request body"
// @Success 200 {object} domain.TechnicianSettingsDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/modules/{module}/settings/{userId} [put]
func (h *TeamHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	m, ok := moduleParam(w, r)
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "userId")
	if !ok {
		return
	}
	var req domain.UpdateTechnicianSettingsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	settings, err := h.settingsService.Update(r.Context(), userID, m.Code, &req)
	if err != nil {
		respondServiceError(w, h.logger, "update settings", err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}
