package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/metalyard/metalyard/internal/platform/httpx"
)

// Handler exposes the movement history read path.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleHistory)
}

type movementResponse struct {
	ID            int64           `json:"id"`
	MaterialID    int64           `json:"material_id"`
	Kind          MovementKind    `json:"kind"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	PurchaseID    int64           `json:"purchase_id,omitempty"`
	SaleID        int64           `json:"sale_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Note          string          `json:"note,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	materialID, err := strconv.ParseInt(q.Get("material_id"), 10, 64)
	if err != nil || materialID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "material_id is required")
		return
	}

	filter := Filter{MaterialID: materialID}
	if from := q.Get("from"); from != "" {
		t, err := parseTime(from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := parseTime(to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	movements, err := h.engine.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	payload := make([]movementResponse, 0, len(movements))
	for _, mv := range movements {
		payload = append(payload, movementResponse{
			ID:            mv.ID,
			MaterialID:    mv.MaterialID,
			Kind:          mv.Kind,
			QuantityDelta: mv.QuantityDelta,
			BalanceBefore: mv.BalanceBefore,
			BalanceAfter:  mv.BalanceAfter,
			PurchaseID:    mv.PurchaseID,
			SaleID:        mv.SaleID,
			OccurredAt:    mv.OccurredAt,
			Note:          mv.Note,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": payload})
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
