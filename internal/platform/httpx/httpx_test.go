package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

type sampleRequest struct {
	StoreID int64  `json:"store_id" validate:"required,gt=0"`
	Method  string `json:"method" validate:"required,oneof=CASH TRANSFER QRIS"`
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"store_id":1,"method":"CASH"}`))
	var body sampleRequest
	require.NoError(t, DecodeAndValidate(req, &body))
	assert.Equal(t, int64(1), body.StoreID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"store_id":1,"method":"CHEQUE"}`))
	err := DecodeAndValidate(req, &sampleRequest{})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Method", verr.Field)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"store_id":`))
	require.ErrorIs(t, DecodeAndValidate(req, &sampleRequest{}), shared.ErrValidation)
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Invalid("attendant_id", "wajib diisi"), http.StatusBadRequest},
		{fmt.Errorf("sale 9: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{fmt.Errorf("%w: lock wait", db.ErrTxTimeout), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		var problem ProblemDetail
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
		assert.Equal(t, tc.status, problem.Status)
	}
}

func TestIDsFromQuery(t *testing.T) {
	cases := map[string][]int64{
		"/?id=4":        {4},
		"/?ids=1,2,3":   {1, 2, 3},
		"/?ids=[5,6]":   {5, 6},
		"/?ids=7&ids=8": {7, 8},
		"/?ids=%5B9%5D": {9},
	}
	for target, want := range cases {
		ids, err := IDsFromQuery(httptest.NewRequest(http.MethodDelete, target, nil))
		require.NoError(t, err, target)
		assert.Equal(t, want, ids, target)
	}

	_, err := IDsFromQuery(httptest.NewRequest(http.MethodDelete, "/", nil))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = IDsFromQuery(httptest.NewRequest(http.MethodDelete, "/?ids=a", nil))
	require.ErrorIs(t, err, shared.ErrValidation)
}
