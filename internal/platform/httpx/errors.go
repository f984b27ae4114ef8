// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

// RespondError maps cross-cutting errors to HTTP responses using RFC7807.
// Domain handlers translate their own typed errors before falling back here.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteProblem(w, ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: verr.Error(), Extra: map[string]any{"field": verr.Field}})
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Submission", "permintaan yang sama sedang diproses")
	case errors.Is(err, shared.ErrInvalidPaymentTransition), errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case db.IsRetryable(err):
		WriteProblem(w, ProblemDetail{Title: "Transaction Aborted", Status: http.StatusServiceUnavailable, Detail: "transaksi gagal diselesaikan, silakan ulangi", Retryable: true})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
