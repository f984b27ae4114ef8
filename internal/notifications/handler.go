package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arikurniawan9/toko-sakinah/internal/platform/httpx"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// NotificationService is implemented by Service.
type NotificationService interface {
	ListForStore(ctx context.Context, storeID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

// Handler exposes store notifications.
type Handler struct {
	logger  *slog.Logger
	service NotificationService
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service NotificationService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Put("/notifications/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	storeID, _ := strconv.ParseInt(q.Get("storeId"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	unread, _ := strconv.ParseBool(q.Get("unread"))

	items, err := h.service.ListForStore(r.Context(), storeID, unread, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []Notification{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.MarkRead(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("notification request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
