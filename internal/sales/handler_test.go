package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

type stubService struct {
	recordInput RecordSaleInput
	recordErr   error
	getErr      error
	deletedIDs  []int64
	deleteActor int64
	deleteErr   error
}

func (s *stubService) RecordSale(_ context.Context, input RecordSaleInput) (*Sale, error) {
	s.recordInput = input
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &Sale{ID: 3, InvoiceNumber: "INV-20260314-TS01-ABCDEF12", Status: shared.PaymentStatusPaid, Total: 50000}, nil
}

func (s *stubService) GetSale(_ context.Context, id int64) (*Sale, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &Sale{ID: id, InvoiceNumber: "INV-X"}, nil
}

func (s *stubService) DeleteSales(_ context.Context, ids []int64, actorID int64) (int, error) {
	s.deletedIDs = ids
	s.deleteActor = actorID
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return len(ids), nil
}

func newTestRouter(svc SalesService) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

const validBody = `{"storeId":1,"cashierId":7,"attendantId":8,"items":[{"productId":11,"quantity":1,"price":50000,"discount":0}],"payment":50000,"paymentMethod":"CASH","additionalDiscount":0}`

func TestRecordSaleHandlerSuccess(t *testing.T) {
	svc := &stubService{}
	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(validBody))
	req.Header.Set("Idempotency-Key", " pos-9 ")
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "INV-20260314-TS01-ABCDEF12", body["invoiceNumber"])
	assert.Equal(t, "PAID", body["status"])
	assert.Equal(t, "pos-9", svc.recordInput.IdempotencyKey)
	assert.Equal(t, int64(8), svc.recordInput.AttendantID)
	assert.Equal(t, PaymentCash, svc.recordInput.PaymentMethod)
}

func TestRecordSaleHandlerErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{name: "missing store", body: `{"cashierId":7,"items":[]}`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"storeId":1,"cashierId":7,"bogus":true}`, status: http.StatusBadRequest},
		{name: "service validation", body: validBody, err: shared.Invalid("attendantId", "pelayan wajib dipilih"), status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				extra := body["extra"].(map[string]any)
				assert.Equal(t, "attendantId", extra["field"])
			}},
		{name: "insufficient stock", body: validBody, err: fmt.Errorf("wrap: %w", &inventory.InsufficientStockError{
			Shortages: []inventory.Shortage{{ProductID: 11, ProductName: "Minyak", Available: 0, Requested: 1}},
		}), status: http.StatusConflict,
			check: func(t *testing.T, body map[string]any) {
				extra := body["extra"].(map[string]any)
				shortages := extra["shortages"].([]any)
				require.Len(t, shortages, 1)
				assert.Equal(t, float64(1), shortages[0].(map[string]any)["requested"])
			}},
		{name: "duplicate submission", body: validBody, err: shared.ErrIdempotencyConflict, status: http.StatusConflict},
		{name: "unexpected", body: validBody, err: fmt.Errorf("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{recordErr: tc.err}
			rr := httptest.NewRecorder()
			newTestRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
			if tc.check != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				tc.check(t, body)
			}
		})
	}
}

func TestGetSaleHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sales/5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":5`)

	rr = httptest.NewRecorder()
	newTestRouter(&stubService{getErr: fmt.Errorf("%w: penjualan 5", shared.ErrNotFound)}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sales/5", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(&stubService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sales/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteSalesHandler(t *testing.T) {
	svc := &stubService{}
	req := httptest.NewRequest(http.MethodDelete, "/sales?ids=4,5", nil)
	req = req.WithContext(shared.ContextWithRequestMeta(req.Context(), shared.RequestMeta{ActorID: 7}))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int64{4, 5}, svc.deletedIDs)
	assert.Equal(t, int64(7), svc.deleteActor)
	assert.JSONEq(t, `{"deleted":2}`, rr.Body.String())

	rr = httptest.NewRecorder()
	newTestRouter(&stubService{deleteErr: fmt.Errorf("%w: INV-1", ErrSaleHasReceivable)}).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sales?id=4", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(&stubService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sales", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
