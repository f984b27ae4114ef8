package ar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arikurniawan9/toko-sakinah/internal/platform/httpx"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// ReceivableService is implemented by Service.
type ReceivableService interface {
	ApplyPayment(ctx context.Context, input PaymentInput) (*Receivable, error)
	Get(ctx context.Context, id int64) (*Receivable, error)
	List(ctx context.Context, filter ListFilter) ([]Receivable, int, error)
	Aging(ctx context.Context, storeID int64, asOf time.Time) (AgingBucket, error)
}

// Handler wires receivable endpoints.
type Handler struct {
	logger  *slog.Logger
	service ReceivableService
}

// NewHandler creates a new receivables handler.
func NewHandler(logger *slog.Logger, service ReceivableService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receivable routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/receivables", h.list)
	r.Get("/receivables/aging", h.aging)
	r.Get("/receivables/{id}", h.get)
	r.Put("/receivables/{id}", h.applyPayment)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: shared.PaymentStatus(q.Get("status")),
		Search: q.Get("search"),
	}
	filter.StoreID, _ = strconv.ParseInt(q.Get("storeId"), 10, 64)
	filter.MemberID, _ = strconv.ParseInt(q.Get("memberId"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("limit"))

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []Receivable{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"receivables": items,
		"pagination":  shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	storeID, _ := strconv.ParseInt(r.URL.Query().Get("storeId"), 10, 64)
	var asOf time.Time
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.writeError(w, r, shared.Invalid("asOf", "format tanggal harus YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.Aging(r.Context(), storeID, asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var input PaymentInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	input.ReceivableID = id
	input.ActorID = shared.RequestMetaFromContext(r.Context()).ActorID
	input.IdempotencyKey = httpx.IdempotencyKey(r)

	rec, err := h.service.ApplyPayment(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var over *OverpaymentError
	switch {
	case errors.As(err, &over):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Overpayment",
			Status: http.StatusBadRequest,
			Detail: over.Error(),
			Extra:  map[string]any{"max": over.Max},
		})
		return
	case errors.Is(err, ErrPaymentInFlight):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:     "Payment In Progress",
			Status:    http.StatusConflict,
			Detail:    "pembayaran piutang ini sedang diproses",
			Retryable: true,
		})
		return
	}
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("receivable request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
