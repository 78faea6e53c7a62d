package trading

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/platform/httpx"
	"github.com/metalyard/metalyard/internal/shared"
)

// Handler wires HTTP endpoints for purchases and sales.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the trading handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers trading routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Get("/", h.handleListPurchases)
		r.Post("/", h.handleCreatePurchase)
		r.Get("/{id}", h.handleGetPurchase)
		r.Put("/{id}", h.handleUpdatePurchase)
		r.Delete("/{id}", h.handleDeletePurchase)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.handleListSales)
		r.Post("/", h.handleCreateSale)
		r.Get("/{id}", h.handleGetSale)
		r.Put("/{id}", h.handleUpdateSale)
		r.Delete("/{id}", h.handleDeleteSale)
	})
}

type purchaseRequest struct {
	MaterialID       int64           `json:"material_id" validate:"required"`
	SupplierName     string          `json:"supplier_name" validate:"required,max=150"`
	SupplierDocument string          `json:"supplier_document" validate:"max=20"`
	SupplierPhone    string          `json:"supplier_phone" validate:"max=20"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	OccurredAt       time.Time       `json:"occurred_at"`
	Note             string          `json:"note" validate:"max=500"`
}

type saleRequest struct {
	MaterialID    int64           `json:"material_id" validate:"required"`
	CustomerName  string          `json:"customer_name" validate:"required,max=200"`
	CustomerTaxID string          `json:"customer_tax_id" validate:"max=20"`
	CustomerPhone string          `json:"customer_phone" validate:"max=20"`
	CustomerEmail string          `json:"customer_email" validate:"omitempty,email"`
	InvoiceNumber string          `json:"invoice_number" validate:"max=50"`
	PaymentStatus string          `json:"payment_status" validate:"omitempty,oneof=PENDING PAID CANCELLED"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Note          string          `json:"note" validate:"max=500"`
}

func (h *Handler) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.listFilter(w, r)
	if !ok {
		return
	}
	purchases, total, err := h.service.ListPurchases(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  purchases,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	purchase, err := h.service.CreatePurchase(r.Context(), PurchaseInput{
		MaterialID:       req.MaterialID,
		SupplierName:     req.SupplierName,
		SupplierDocument: req.SupplierDocument,
		SupplierPhone:    req.SupplierPhone,
		Quantity:         req.Quantity,
		UnitPrice:        req.UnitPrice,
		OccurredAt:       req.OccurredAt,
		Note:             req.Note,
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) handleUpdatePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	purchase, err := h.service.UpdatePurchase(r.Context(), id, PurchaseInput{
		MaterialID:       req.MaterialID,
		SupplierName:     req.SupplierName,
		SupplierDocument: req.SupplierDocument,
		SupplierPhone:    req.SupplierPhone,
		Quantity:         req.Quantity,
		UnitPrice:        req.UnitPrice,
		OccurredAt:       req.OccurredAt,
		Note:             req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePurchase(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.listFilter(w, r)
	if !ok {
		return
	}
	sales, total, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      sales,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sale, err := h.service.CreateSale(r.Context(), SaleInput{
		MaterialID:     req.MaterialID,
		CustomerName:   req.CustomerName,
		CustomerTaxID:  req.CustomerTaxID,
		CustomerPhone:  req.CustomerPhone,
		CustomerEmail:  req.CustomerEmail,
		InvoiceNumber:  req.InvoiceNumber,
		PaymentStatus:  PaymentStatus(req.PaymentStatus),
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		OccurredAt:     req.OccurredAt,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sale, err := h.service.UpdateSale(r.Context(), id, SaleInput{
		MaterialID:    req.MaterialID,
		CustomerName:  req.CustomerName,
		CustomerTaxID: req.CustomerTaxID,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		InvoiceNumber: req.InvoiceNumber,
		PaymentStatus: PaymentStatus(req.PaymentStatus),
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		OccurredAt:    req.OccurredAt,
		Note:          req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSale(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) listFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	q := r.URL.Query()
	filter := ListFilter{}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return ListFilter{}, false
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return ListFilter{}, false
		}
		filter.To = t
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filter.PerPage = perPage
	}
	return filter, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		detail := "invalid request"
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			detail = fieldErrs[0].Error()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrMovementNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrQuantityImmutable), errors.Is(err, ledger.ErrNegativeBalance), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("trading request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not save")
	}
}
