package handler

import (
	"net/http"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/service"
	"go.uber.org/zap"
)

// ReportHandler serves spreadsheet exports as {fileName, contentBase64}
type ReportHandler struct {
	reportService *service.ReportService
	logger        *zap.Logger
}

func NewReportHandler(reportService *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

func (h *ReportHandler) respond(w http.ResponseWriter, op string, file *domain.ReportFileDTO, err error) {
	if err != nil {
		respondServiceError(w, h.logger, op, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

// WarehouseStock godoc
// @Summary Warehouse stock report
// @Description Spreadsheet of every warehouse row
// @Tags Reports
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Success 200 {object} domain.ReportFileDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/reports/warehouse-stock [get]
func (h *ReportHandler) WarehouseStock(w http.ResponseWriter, r *http.Request) {
	file, err := h.reportService.WarehouseStock(r.Context())
	h.respond(w, "warehouse stock report", file, err)
}

// TechnicianStock godoc
// @Summary Technician stock report
// @Description Spreadsheet of the stock held by a technician
// @Tags Reports
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param technicianId path string true "Technician ID" format(uuid)
// @Success 200 {object} domain.ReportFileDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/reports/technicians/{technicianId}/stock [get]
func (h *ReportHandler) TechnicianStock(w http.ResponseWriter, r *http.Request) {
	technicianID, ok := uuidParam(w, r, "technicianId")
	if !ok {
		return
	}
	file, err := h.reportService.TechnicianStock(r.Context(), technicianID)
	h.respond(w, "technician stock report", file, err)
}

// Orders godoc
// @Summary Orders report
// @Description Spreadsheet of orders in the date range
// @Tags Reports
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD), inclusive"
// @Success 200 {object} domain.ReportFileDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/reports/orders [get]
func (h *ReportHandler) Orders(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	file, err := h.reportService.Orders(r.Context(), from, to)
	h.respond(w, "orders report", file, err)
}

// ReturnedDevices godoc
// @Summary Returned devices report
// @Description Spreadsheet of devices returned to the operator in the date range
// @Tags Reports
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD), inclusive"
// @Success 200 {object} domain.ReportFileDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/reports/returned-devices [get]
func (h *ReportHandler) ReturnedDevices(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	file, err := h.reportService.ReturnedDevices(r.Context(), from, to)
	h.respond(w, "returned devices report", file, err)
}

// Settlements godoc
// @Summary Settlements report
// @Description Spreadsheet of settlement lines of orders completed in the date range
// @Tags Reports
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD), inclusive"
// @Success 200 {object} domain.ReportFileDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/reports/settlements [get]
func (h *ReportHandler) Settlements(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	file, err := h.reportService.Settlements(r.Context(), from, to)
	h.respond(w, "settlements report", file, err)
}
