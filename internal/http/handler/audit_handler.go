package handler

import (
	"net/http"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/service"
	"go.uber.org/zap"
)

// AuditHandler handles audit log related HTTP requests
type AuditHandler struct {
	auditService *service.AuditLogService
	logger       *zap.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *service.AuditLogService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// List godoc
// @Summary List audit logs
// @Description Audit entries filtered by user, action, module, entity and time range
// @Tags Audit
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param userId query string false "Filter by user" format(uuid)
// @Param action query string false "Filter by action"
// @Param module query string false "Filter by module"
// @Param entityType query string false "Filter by entity type"
// @Param entityId query string false "Filter by entity" format(uuid)
// @Param startTime query string false "From time (RFC3339)"
// @Param endTime query string false "To time (RFC3339)"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.AuditLogDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /core/audit-logs [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize := pagination(r)

	params := service.AuditLogQueryParams{
		ModuleCode: q.Get("module"),
		EntityType: q.Get("entityType"),
		Page:       page,
		PageSize:   pageSize,
	}

	var err error
	if params.UserID, err = optionalUUIDQuery(r, "userId"); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if params.EntityID, err = optionalUUIDQuery(r, "entityId"); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if action := q.Get("action"); action != "" {
		a := domain.AuditAction(action)
		params.Action = &a
	}
	for name, dst := range map[string]**time.Time{"startTime": &params.StartTime, "endTime": &params.EndTime} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, name+" must be RFC3339")
			return
		}
		*dst = &t
	}

	result, err := h.auditService.List(r.Context(), params)
	if err != nil {
		respondServiceError(w, h.logger, "list audit logs", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
