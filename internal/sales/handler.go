package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/httpx"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// SalesService is implemented by Service.
type SalesService interface {
	RecordSale(ctx context.Context, input RecordSaleInput) (*Sale, error)
	GetSale(ctx context.Context, id int64) (*Sale, error)
	DeleteSales(ctx context.Context, ids []int64, actorID int64) (int, error)
}

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service SalesService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service SalesService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.recordSale)
	r.Get("/sales/{id}", h.getSale)
	r.Delete("/sales", h.deleteSales)
}

type recordSaleResponse struct {
	ID            int64                `json:"id"`
	InvoiceNumber string               `json:"invoiceNumber"`
	Status        shared.PaymentStatus `json:"status"`
	Total         int64                `json:"total"`
	Change        int64                `json:"change"`
	CreatedAt     time.Time            `json:"createdAt"`
	Sale          *Sale                `json:"sale"`
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var input RecordSaleInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	input.IdempotencyKey = httpx.IdempotencyKey(r)

	sale, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordSaleResponse{
		ID:            sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		Status:        sale.Status,
		Total:         sale.Total,
		Change:        sale.Change,
		CreatedAt:     sale.CreatedAt,
		Sale:          sale,
	})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) deleteSales(w http.ResponseWriter, r *http.Request) {
	ids, err := httpx.IDsFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	actor := shared.RequestMetaFromContext(r.Context()).ActorID
	deleted, err := h.service.DeleteSales(r.Context(), ids, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if problem, ok := inventory.ProblemFor(err); ok {
		httpx.WriteProblem(w, problem)
		return
	}
	if errors.Is(err, ErrSaleHasReceivable) {
		httpx.Problem(w, http.StatusConflict, "Sale Has Receivable", "penjualan dengan piutang tidak dapat dihapus")
		return
	}
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
