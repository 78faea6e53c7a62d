package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/metalyard/metalyard/internal/catalog"
	"github.com/metalyard/metalyard/internal/platform/httpx"
)

// Handler serves the derived stock view.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the stock endpoints on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.handleList)
	r.Get("/stock/low", h.handleLow)
	r.Get("/stock/{materialID}", h.handleOne)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.SnapshotAll(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": snapshots})
}

func (h *Handler) handleLow(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": snapshots})
}

func (h *Handler) handleOne(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	snapshot, err := h.service.SnapshotOne(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "material not found")
		return
	}
	h.logger.Error("stock request failed", "path", r.URL.Path, "error", err)
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not compute stock view")
}
