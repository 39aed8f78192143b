package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/report"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	return apiErr
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: 3 left", service.ErrInsufficientStock), http.StatusBadRequest, domain.CodeInsufficientStock},
		{service.ErrLocationRequired, http.StatusBadRequest, domain.CodeLocationRequired},
		{fmt.Errorf("%w: unknown code X", service.ErrInvalidBillingDraft), http.StatusBadRequest, domain.CodeInvalidBilling},
		{service.ErrInvalidTransition, http.StatusConflict, domain.CodeInvalidTransition},
		{report.ErrNoRows, http.StatusBadRequest, domain.CodeNoRowsToExport},
		{service.ErrRetryExists, http.StatusConflict, domain.CodeConflict},
		{service.ErrDuplicateSerial, http.StatusConflict, domain.CodeConflict},
		{service.ErrOrderNotFound, http.StatusNotFound, domain.CodeNotFound},
		{service.ErrStockItemNotFound, http.StatusNotFound, domain.CodeNotFound},
		{service.ErrForbidden, http.StatusForbidden, domain.CodeForbidden},
		{fmt.Errorf("%w: quantity", service.ErrInvalidInput), http.StatusBadRequest, domain.CodeBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError, domain.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			respondServiceError(rr, zap.NewNop(), "test", tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
			apiErr := decodeProblem(t, rr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, getErrorType(tt.status), apiErr.Type)
		})
	}
}

func TestRespondServiceError_HidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	respondServiceError(rr, zap.NewNop(), "list orders", errors.New("pq: password authentication failed"))

	assert.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("field errors", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"itemType":"BOX","name":""}]}`))
		rr := httptest.NewRecorder()

		var req domain.ReceiveStockRequest
		assert.False(t, decodeAndValidate(rr, r, &req))
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		apiErr := decodeProblem(t, rr)
		assert.Equal(t, domain.CodeBadRequest, apiErr.Code)
		assert.Contains(t, apiErr.Errors, "itemType")
		assert.Contains(t, apiErr.Errors, "name")
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":`))
		rr := httptest.NewRecorder()

		var req domain.ReceiveStockRequest
		assert.False(t, decodeAndValidate(rr, r, &req))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("valid", func(t *testing.T) {
		body := `{"items":[{"itemType":"MATERIAL","name":"Cable","quantity":10}]}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rr := httptest.NewRecorder()

		var req domain.ReceiveStockRequest
		require.True(t, decodeAndValidate(rr, r, &req))
		assert.Equal(t, 10, req.Items[0].Quantity)
	})
}

func TestDateRange(t *testing.T) {
	t.Run("to is inclusive", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31", nil)
		from, to, err := dateRange(r)
		require.NoError(t, err)
		assert.Equal(t, "2026-03-01", from.Format(dateLayout))
		assert.Equal(t, "2026-04-01", to.Format(dateLayout))
	})

	t.Run("missing bound", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01", nil)
		_, _, err := dateRange(r)
		assert.Error(t, err)
	})

	t.Run("reversed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-10&to=2026-03-01", nil)
		_, _, err := dateRange(r)
		assert.Error(t, err)
	})
}
