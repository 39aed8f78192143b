package handler

import (
	"net/http"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/service"
	"go.uber.org/zap"
)

// OrderHandler serves the order lifecycle of one module
type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// List godoc
// @Summary List orders
// @Description Paginated orders of the module; technicians only see their own
// @Tags Orders
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param search query string false "Search in order number and address"
// @Param status query string false "Filter by status" Enums(PENDING, ASSIGNED, COMPLETED, NOT_COMPLETED)
// @Param type query string false "Filter by order type"
// @Param technicianId query string false "Filter by technician" format(uuid)
// @Param unassigned query bool false "Only orders without technician"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD), inclusive"
// @Param sortBy query string false "Sort field" Enums(date, orderNumber, status, city, updatedAt)
// @Param sortOrder query string false "Sort direction" Enums(asc, desc)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.OrderDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders [get]
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filters := &domain.OrderFilters{
		Search:     q.Get("search"),
		Unassigned: q.Get("unassigned") == "true",
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
	}
	if status := q.Get("status"); status != "" {
		s := domain.OrderStatus(status)
		filters.Status = &s
	}
	if orderType := q.Get("type"); orderType != "" {
		t := domain.OrderType(orderType)
		filters.Type = &t
	}

	var err error
	if filters.AssignedToID, err = optionalUUIDQuery(r, "technicianId"); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if filters.DateFrom, err = optionalDate(r, "from"); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if filters.DateTo, err = optionalDate(r, "to"); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if filters.DateTo != nil {
		next := filters.DateTo.AddDate(0, 0, 1)
		filters.DateTo = &next
	}

	result, err := h.orderService.List(r.Context(), page, pageSize, filters)
	if err != nil {
		respondServiceError(w, h.logger, "list orders", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get order
// @Description Order with work codes, settlements and attached devices
// @Tags Orders
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Order ID" format(uuid)
// @Success 200 {object} domain.OrderDetailsDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/{id} [get]
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	order, err := h.orderService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get order", err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// History godoc
// @Summary Order attempts
// @Description Every attempt of the order number, oldest first
// @Tags Orders
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Order ID" format(uuid)
// @Success 200 {array} domain.OrderDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/{id}/history [get]
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	attempts, err := h.orderService.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get order history", err)
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}

// Catalog godoc
// @Summary Billing catalog
// @Description Rates and materials technicians report on completion
// @Tags Orders
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Success 200 {object} domain.CatalogDTO
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/catalog [get]
func (h *OrderHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.orderService.Catalog(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "get catalog", err)
		return
	}
	respondJSON(w, http.StatusOK, catalog)
}

// Create godoc
// @Summary Create order
// @Description Creates a PENDING order, or ASSIGNED when a technician is given
// @Tags Orders
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param request body domain.CreateOrderRequest true "Request body"
// @Success 201 {object} domain.OrderDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders [post]
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.orderService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "create order", err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// Assign godoc
// @Summary Assign order
// @Description Sets the technician, or clears it when technicianId is null
// @Tags Orders
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Order ID" format(uuid)
// @Param request body domain.AssignOrderRequest true "Request body"
// @Success 200 {object} domain.OrderDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/{id}/assign [post]
func (h *OrderHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AssignOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.orderService.Assign(r.Context(), id, req.TechnicianID)
	if err != nil {
		respondServiceError(w, h.logger, "assign order", err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// Complete godoc
// @Summary Complete order
// @Description Closes an assigned order as COMPLETED or NOT_COMPLETED. Billing, settlements and stock movements commit together.
// @Tags Orders
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Order ID" format(uuid)
// @Param request body domain.CompleteOrderRequest true "Request body"
// @Success 200 {object} domain.OrderDetailsDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/{id}/complete [post]
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.CompleteOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.orderService.Complete(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, "complete order", err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// CreateRetry godoc
// @Summary Retry order
// @Description Creates the next attempt of a NOT_COMPLETED order
// @Tags Orders
// @Accept json
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param id path string true "Order ID" format(uuid)
// @Param request body domain.CreateRetryRequest true "Request body"
// @Success 201 {object} domain.OrderDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/{id}/retry [post]
func (h *OrderHandler) CreateRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.CreateRetryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.orderService.CreateRetry(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, "create retry", err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// Earnings godoc
// @Summary Technician earnings
// @Description Monthly settlement total against the technician's goals. The technician defaults to the caller.
// @Tags Orders
// @Produce json
// @Param module path string true "Module code" Enums(vectra, opl)
// @Param technicianId query string false "Technician" format(uuid)
// @Param month query string false "Month (YYYY-MM), default current"
// @Success 200 {object} domain.EarningsDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /{module}/orders/earnings [get]
func (h *OrderHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	technicianID, err := optionalUUIDQuery(r, "technicianId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
		return
	}
	if technicianID == nil {
		userCtx, ok := auth.FromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "no user context")
			return
		}
		technicianID = &userCtx.UserID
	}

	month := time.Now().UTC()
	if raw := r.URL.Query().Get("month"); raw != "" {
		if month, err = time.Parse("2006-01", raw); err != nil {
			respondWithError(w, http.StatusBadRequest, domain.CodeBadRequest, "month must be YYYY-MM")
			return
		}
	}

	earnings, err := h.orderService.Earnings(r.Context(), *technicianID, month)
	if err != nil {
		respondServiceError(w, h.logger, "get earnings", err)
		return
	}
	respondJSON(w, http.StatusOK, earnings)
}
