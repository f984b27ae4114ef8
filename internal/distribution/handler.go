package distribution

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/httpx"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// DistributionService is implemented by Service.
type DistributionService interface {
	CreateDistribution(ctx context.Context, input CreateInput) (*Batch, error)
	GetBatch(ctx context.Context, lineID int64) (*Batch, error)
	List(ctx context.Context, filter ListFilter) ([]Batch, int, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*Batch, error)
}

// Handler wires warehouse distribution endpoints.
type Handler struct {
	logger  *slog.Logger
	service DistributionService
}

// NewHandler creates a new distribution handler.
func NewHandler(logger *slog.Logger, service DistributionService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers distribution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/warehouse/distribution", h.create)
	r.Get("/warehouse/distribution", h.get)
	r.Put("/warehouse/distribution/{batchID}/status", h.updateStatus)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	input.IdempotencyKey = httpx.IdempotencyKey(r)

	batch, err := h.service.CreateDistribution(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"distribution": batch})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, r, shared.Invalid("id", "id tidak valid"))
			return
		}
		batch, err := h.service.GetBatch(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"distribution": batch})
		return
	}

	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
	}
	filter.StoreID, _ = strconv.ParseInt(q.Get("storeId"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("limit"))
	for _, p := range []struct {
		name   string
		target **time.Time
	}{{"startDate", &filter.StartDate}, {"endDate", &filter.EndDate}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", raw, invoiceZone)
		if err != nil {
			h.writeError(w, r, shared.Invalid(p.name, "format tanggal harus YYYY-MM-DD"))
			return
		}
		*p.target = &day
	}

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []Batch{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"distributions": items,
		"pagination":    shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "batchID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var input StatusInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	input.BatchID = id
	input.ActorID = shared.RequestMetaFromContext(r.Context()).ActorID

	batch, err := h.service.UpdateStatus(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"distribution": batch})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var absent *ProductNotInWarehouseError
	switch {
	case errors.As(err, &absent):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Product Not In Warehouse",
			Status: http.StatusNotFound,
			Detail: absent.Error(),
			Extra:  map[string]any{"product_ids": absent.ProductIDs},
		})
		return
	case errors.Is(err, ErrInvalidStatusTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Status Transition", err.Error())
		return
	}
	if problem, ok := inventory.ProblemFor(err); ok {
		httpx.WriteProblem(w, problem)
		return
	}
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("distribution request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
