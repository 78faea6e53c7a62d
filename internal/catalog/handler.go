package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/metalyard/metalyard/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the material catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/materials", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

type materialRequest struct {
	Name          string          `json:"name" validate:"required,max=100"`
	Description   string          `json:"description" validate:"max=250"`
	Unit          string          `json:"unit" validate:"required,oneof=KG TON UN"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	MinimumStock  decimal.Decimal `json:"minimum_stock"`
}

type materialResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	MinimumStock  decimal.Decimal `json:"minimum_stock"`
	UnitProfit    decimal.Decimal `json:"unit_profit"`
	ProfitMargin  decimal.Decimal `json:"profit_margin"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toResponse(m Material) materialResponse {
	return materialResponse{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Unit:          m.Unit,
		PurchasePrice: m.PurchasePrice,
		SalePrice:     m.SalePrice,
		MinimumStock:  m.MinimumStock,
		UnitProfit:    m.UnitProfit(),
		ProfitMargin:  m.ProfitMargin(),
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("all") == "true"
	materials, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		payload = append(payload, toResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": payload})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	material, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(material))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	material, err := h.service.Create(r.Context(), Material{
		Name:          req.Name,
		Description:   req.Description,
		Unit:          req.Unit,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		MinimumStock:  req.MinimumStock,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(material))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	err = h.service.Update(r.Context(), Material{
		ID:            id,
		Name:          req.Name,
		Description:   req.Description,
		Unit:          req.Unit,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		MinimumStock:  req.MinimumStock,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (materialRequest, bool) {
	var req materialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return materialRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		detail := "invalid request"
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			detail = fieldErrs[0].Error()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return materialRequest{}, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidMaterial):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
