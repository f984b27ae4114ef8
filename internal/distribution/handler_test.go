package distribution

import (
	"context"
	"encoding/json"
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
	created CreateInput
	lineID  int64
	list    ListFilter
	status  StatusInput
	err     error
}

func (s *stubService) CreateDistribution(_ context.Context, input CreateInput) (*Batch, error) {
	s.created = input
	if s.err != nil {
		return nil, s.err
	}
	return &Batch{ID: 1, InvoiceNumber: "D-20240105-TS01-0042", Status: StatusPendingAcceptance}, nil
}

func (s *stubService) GetBatch(_ context.Context, lineID int64) (*Batch, error) {
	s.lineID = lineID
	return &Batch{ID: 1, InvoiceNumber: "D-20240105-TS01-0042"}, s.err
}

func (s *stubService) List(_ context.Context, filter ListFilter) ([]Batch, int, error) {
	s.list = filter
	return nil, 0, s.err
}

func (s *stubService) UpdateStatus(_ context.Context, input StatusInput) (*Batch, error) {
	s.status = input
	if s.err != nil {
		return nil, s.err
	}
	return &Batch{ID: input.BatchID, Status: input.Status}, nil
}

func serve(svc DistributionService, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

const createBody = `{"storeId":4,"distributionDate":"2024-01-05","distributedBy":9,"items":[{"productId":20,"quantity":3,"purchasePrice":80000}]}`

func TestCreateHandler(t *testing.T) {
	svc := &stubService{}
	req := httptest.NewRequest(http.MethodPost, "/warehouse/distribution", strings.NewReader(createBody))
	req.Header.Set("Idempotency-Key", "dist-9")
	rr := serve(svc, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(4), svc.created.StoreID)
	assert.Equal(t, "dist-9", svc.created.IdempotencyKey)
	require.Len(t, svc.created.Items, 1)
	require.NotNil(t, svc.created.Items[0].PurchasePrice)
	assert.Equal(t, int64(80000), *svc.created.Items[0].PurchasePrice)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "D-20240105-TS01-0042", body["distribution"]["invoiceNumber"])
}

func TestCreateHandlerErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing items", `{"storeId":4,"distributedBy":9,"items":[]}`, nil, http.StatusBadRequest},
		{"bad status", `{"storeId":4,"distributedBy":9,"status":"REJECTED","items":[{"productId":1,"quantity":1}]}`, nil, http.StatusBadRequest},
		{"not in warehouse", createBody, &ProductNotInWarehouseError{ProductIDs: []int64{20}}, http.StatusNotFound},
		{"store not found", createBody, shared.ErrNotFound, http.StatusNotFound},
		{"short", createBody, &inventory.InsufficientStockError{
			Location:  inventory.WarehouseLocation(1),
			Shortages: []inventory.Shortage{{ProductID: 20, ProductName: "Gamis Katun", Available: 5, Requested: 8}},
		}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(&stubService{err: tc.err}, httptest.NewRequest(http.MethodPost, "/warehouse/distribution", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}

	rr := serve(&stubService{err: &inventory.InsufficientStockError{
		Shortages: []inventory.Shortage{{ProductID: 20, Available: 5, Requested: 8}},
	}}, httptest.NewRequest(http.MethodPost, "/warehouse/distribution", strings.NewReader(createBody)))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	shortages := body["extra"].(map[string]any)["shortages"].([]any)
	assert.Equal(t, float64(5), shortages[0].(map[string]any)["available"])
}

func TestGetHandlerByLineID(t *testing.T) {
	svc := &stubService{}
	rr := serve(svc, httptest.NewRequest(http.MethodGet, "/warehouse/distribution?id=15", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(15), svc.lineID)

	rr = serve(svc, httptest.NewRequest(http.MethodGet, "/warehouse/distribution?id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetHandlerList(t *testing.T) {
	svc := &stubService{}
	rr := serve(svc, httptest.NewRequest(http.MethodGet,
		"/warehouse/distribution?storeId=4&status=ACCEPTED&search=gamis&startDate=2024-01-01&endDate=2024-01-31&page=2&limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(4), svc.list.StoreID)
	assert.Equal(t, StatusAccepted, svc.list.Status)
	assert.Equal(t, "gamis", svc.list.Search)
	assert.Equal(t, 2, svc.list.Page)
	assert.Equal(t, 5, svc.list.PerPage)
	require.NotNil(t, svc.list.StartDate)
	require.NotNil(t, svc.list.EndDate)
	assert.Equal(t, 31, svc.list.EndDate.Day())
	assert.Contains(t, rr.Body.String(), `"distributions":[]`)

	rr = serve(svc, httptest.NewRequest(http.MethodGet, "/warehouse/distribution?startDate=01-2024", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateStatusHandler(t *testing.T) {
	svc := &stubService{}
	req := httptest.NewRequest(http.MethodPut, "/warehouse/distribution/3/status", strings.NewReader(`{"status":"ACCEPTED"}`))
	req = req.WithContext(shared.ContextWithRequestMeta(req.Context(), shared.RequestMeta{ActorID: 12}))
	rr := serve(svc, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(3), svc.status.BatchID)
	assert.Equal(t, int64(12), svc.status.ActorID)

	rr = serve(svc, httptest.NewRequest(http.MethodPut, "/warehouse/distribution/3/status", strings.NewReader(`{"status":"PENDING_ACCEPTANCE"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(&stubService{err: ErrInvalidStatusTransition},
		httptest.NewRequest(http.MethodPut, "/warehouse/distribution/3/status", strings.NewReader(`{"status":"REJECTED"}`)))
	assert.Equal(t, http.StatusConflict, rr.Code)
}
