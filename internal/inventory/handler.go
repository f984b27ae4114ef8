package inventory

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

// MovementReader is satisfied by Repository.
type MovementReader interface {
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Handler exposes the stock card.
type Handler struct {
	logger *slog.Logger
	reader MovementReader
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, reader MovementReader) *Handler {
	return &Handler{logger: logger, reader: reader}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inventory/movements", h.listMovements)
}

type movementResponse struct {
	LocationKind string    `json:"location_kind"`
	LocationID   int64     `json:"location_id"`
	ProductID    int64     `json:"product_id"`
	QtyChange    int       `json:"qty_change"`
	BalanceAfter int       `json:"balance_after"`
	RefModule    string    `json:"ref_module"`
	RefID        string    `json:"ref_id"`
	ActorID      int64     `json:"actor_id,omitempty"`
	PostedAt     time.Time `json:"posted_at"`
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{}
	switch q.Get("location") {
	case "store", "":
		filter.Location.Kind = LocationStore
	case "warehouse":
		filter.Location.Kind = LocationWarehouse
	default:
		httpx.RespondError(w, shared.Invalid("location", "lokasi harus store atau warehouse"))
		return
	}
	id, err := strconv.ParseInt(q.Get("locationId"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Invalid("locationId", "locationId wajib diisi"))
		return
	}
	filter.Location.ID = id
	if raw := q.Get("productId"); raw != "" {
		filter.ProductID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("startDate"); raw != "" {
		filter.From, _ = time.Parse("2006-01-02", raw)
	}
	if raw := q.Get("endDate"); raw != "" {
		if to, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = to.AddDate(0, 0, 1)
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	movements, err := h.reader.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			LocationKind: string(m.Location.Kind),
			LocationID:   m.Location.ID,
			ProductID:    m.ProductID,
			QtyChange:    m.QtyChange,
			BalanceAfter: m.BalanceAfter,
			RefModule:    m.RefModule,
			RefID:        m.RefID,
			ActorID:      m.ActorID,
			PostedAt:     m.PostedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

// ProblemFor maps ledger errors onto problem responses. The second result is
// false for errors the ledger does not own.
func ProblemFor(err error) (httpx.ProblemDetail, bool) {
	var short *InsufficientStockError
	if errors.As(err, &short) {
		return httpx.ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusConflict,
			Detail: short.Error(),
			Extra:  map[string]any{"shortages": short.Shortages},
		}, true
	}
	var missing *MissingStockError
	if errors.As(err, &missing) {
		return httpx.ProblemDetail{
			Title:  "Stock Record Not Found",
			Status: http.StatusNotFound,
			Detail: missing.Error(),
			Extra:  map[string]any{"product_ids": missing.ProductIDs},
		}, true
	}
	if errors.Is(err, ErrInvalidQuantity) {
		return httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}, true
	}
	return httpx.ProblemDetail{}, false
}
