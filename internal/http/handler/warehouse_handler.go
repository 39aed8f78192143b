package handler

import (
	"net/http"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/service"
	"go.uber.org/zap"
)

// WarehouseHandler serves the stock ledger of one module
type WarehouseHandler struct {
	warehouseService *service.WarehouseService
	logger           *zap.Logger
}

func NewWarehouseHandler(warehouseService *service.WarehouseService, logger *zap.Logger) *WarehouseHandler {
	return &WarehouseHandler{
		warehouseService: warehouseService,
		logger:           logger,
	}
}

// List godoc
// @Summary List stock
// @Description Paginated warehouse rows of the active location
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param search query string false "Search in name and serial number"
// @Param central query bool false "Only the central warehouse"
// @Param itemType query string false "Filter by item type" Enums(DEVICE, MATERIAL)
// @Param status query string false "Filter by status"
// @Param holderId query string false "Filter by technician holding the stock" format(uuid)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.StockItemDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse [get]
func (h *WarehouseHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filters := &domain.StockFilters{
		Search:      q.Get("search"),
		CentralOnly: q.Get("central") == "true",
	}
	if itemType := q.Get("itemType"); itemType != "" {
		t := domain.StockItemType(itemType)
		filters.ItemType = &t
	}
	if status := q.Get("status"); status != "" {
		s := domain.StockStatus(status)
		filters.Status = &s
	}

	var err error
	if filters.HolderID, err = optionalUUIDQuery(r, "holderId"); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	// the active location was validated against the caller's assignments
	if caps, ok := auth.CapabilitiesFromContext(r.Context()); ok {
		filters.LocationID = caps.ActiveLocationID
	}

	result, err := h.warehouseService.List(r.Context(), page, pageSize, filters)
	if err != nil {
		respondServiceError(w, h.logger, "list stock", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Sum godoc
// @Summary Material quantity
// @Description Quantity of a material held by holderId, or by the central warehouse. Technicians may only query themselves.
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param name query string true "Material name"
// @Param holderId query string false "Technician holding the material" format(uuid)
// @Success 200 {object} domain.StockSumDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/sum [get]
func (h *WarehouseHandler) Sum(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, "name is required")
		return
	}
	holder, err := optionalUUIDQuery(r, "holderId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if userCtx, ok := auth.FromContext(r.Context()); ok && userCtx.HasRole(domain.RoleTechnician) {
		if holder == nil || *holder != userCtx.UserID {
			respondWithError(w, http.StatusForbidden, domain.CodeForbidden, "technicians may only query their own stock")
			return
		}
	}

	sum, err := h.warehouseService.SumStockForHolder(r.Context(), holder, name)
	if err != nil {
		respondServiceError(w, h.logger, "sum stock", err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// TechnicianStock godoc
// @Summary Technician stock
// @Description Stock held by a technician
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param technicianId path string true "Technician ID" format(uuid)
// @Success 200 {array} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/technicians/{technicianId} [get]
func (h *WarehouseHandler) TechnicianStock(w http.ResponseWriter, r *http.Request) {
	technicianID, ok := uuidParam(w, r, "technicianId")
	if !ok {
		return
	}
	items, err := h.warehouseService.TechnicianStock(r.Context(), technicianID)
	if err != nil {
		respondServiceError(w, h.logger, "get technician stock", err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// ItemHistory godoc
// @Summary Item history
// @Description Movements of one warehouse row, newest first
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Item ID" format(uuid)
// @Success 200 {array} domain.StockHistoryDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/items/{id}/history [get]
func (h *WarehouseHandler) ItemHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.warehouseService.ItemHistory(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get item history", err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// CollectedDevices godoc
// @Summary Collected devices
// @Description Devices picked up from customers in the date range
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD), inclusive"
// @Success 200 {array} domain.StockHistoryDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/collected [get]
func (h *WarehouseHandler) CollectedDevices(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	entries, err := h.warehouseService.CollectedDevices(r.Context(), from, to)
	if err != nil {
		respondServiceError(w, h.logger, "list collected devices", err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Receive godoc
// @Summary Receive stock
// @Description Takes deliveries into the active location. Materials merge into the central row of the same name.
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Param request body domain.ReceiveStockRequest true "Request body"
// @Success 201 {array} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/receive [post]
func (h *WarehouseHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req domain.ReceiveStockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	items, err := h.warehouseService.Receive(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "receive stock", err)
		return
	}
	respondJSON(w, http.StatusCreated, items)
}

// Transfer godoc
// @Summary Transfer stock
// @Description Moves quantity of an item between holders; a null holder is the central warehouse
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Param request body domain.TransferStockRequest true "Request body"
// @Success 200 {object} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/transfer [post]
func (h *WarehouseHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferStockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.warehouseService.Transfer(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "transfer stock", err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Issue godoc
// @Summary Issue stock
// @Description Moves central stock to a technician
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Param request body domain.MoveStockRequest true "Request body"
// @Success 200 {array} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/issue [post]
func (h *WarehouseHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveStockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	items, err := h.warehouseService.Issue(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "issue stock", err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// ReturnFromTechnician godoc
// @Summary Return stock
// @Description Moves a technician's stock back to the central warehouse
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Param request body domain.MoveStockRequest true "Request body"
// @Success 200 {array} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/return [post]
func (h *WarehouseHandler) ReturnFromTechnician(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveStockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	items, err := h.warehouseService.ReturnFromTechnician(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "return stock", err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// AssignToOrder godoc
// @Summary Assign item to order
// @Description Attaches a device to an open order, or consumes material for it
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Item ID" format(uuid)
// @Param request body domain.AssignToOrderRequest true "Request body"
// @Success 200 {object} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/items/{id}/assign [post]
func (h *WarehouseHandler) AssignToOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AssignToOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.warehouseService.AssignToOrder(r.Context(), id, req.OrderID, req.Quantity)
	if err != nil {
		respondServiceError(w, h.logger, "assign stock to order", err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// WriteOff godoc
// @Summary Write off stock
// @Description Removes damaged or lost stock with a reason
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param X-Location-ID header string false "Active location for admins and coordinators" format(uuid)
// @Param request body domain.WriteOffRequest true "Request body"
// @Success 200 {object} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/write-off [post]
func (h *WarehouseHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	var req domain.WriteOffRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.warehouseService.WriteOff(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "write off stock", err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ReturnToOperator godoc
// @Summary Return devices to operator
// @Description Marks the devices behind history entries as returned; entries already returned are counted
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param request body domain.ReturnToOperatorRequest true "Request body"
// @Success 200 {object} domain.ReturnToOperatorResult
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/return-to-operator [post]
func (h *WarehouseHandler) ReturnToOperator(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnToOperatorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.warehouseService.ReturnToOperator(r.Context(), req.HistoryIDs)
	if err != nil {
		respondServiceError(w, h.logger, "return to operator", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// PendingTransfers godoc
// @Summary Pending transfers
// @Description Devices offered to the calling technician
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Success 200 {array} domain.StockItemDTO
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/transfers [get]
func (h *WarehouseHandler) PendingTransfers(w http.ResponseWriter, r *http.Request) {
	items, err := h.warehouseService.PendingTransfers(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list pending transfers", err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// RequestTransfer godoc
// @Summary Offer device
// @Description Offers a held device to another technician
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param request body domain.RequestTransferRequest true "Request body"
// @Success 200 {object} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/transfers [post]
func (h *WarehouseHandler) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestTransferRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.warehouseService.RequestTransfer(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "request transfer", err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ConfirmTransfer godoc
// @Summary Confirm transfer
// @Description The receiving technician takes the offered device
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Item ID" format(uuid)
// @Success 200 {object} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/transfers/{id}/confirm [post]
func (h *WarehouseHandler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	item, err := h.warehouseService.ConfirmTransfer(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "confirm transfer", err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// RejectTransfer godoc
// @Summary Reject transfer
// @Description The receiving technician declines the offered device
// @Tags Warehouse
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Item ID" format(uuid)
// @Success 200 {object} domain.StockItemDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/warehouse/transfers/{id}/reject [post]
func (h *WarehouseHandler) RejectTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	item, err := h.warehouseService.RejectTransfer(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "reject transfer", err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}
