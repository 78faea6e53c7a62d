package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/metalyard/metalyard/internal/platform/httpx"
)

// Handler serves the period summary endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/summary", h.handleSummary)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	summary, err := h.service.Summary(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidPeriod) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("summary query failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not compute summary")
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// parsePeriod reads from/to query params as dates, defaulting to the
// current month when both are absent. The end date is exclusive.
func parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	rawFrom := r.URL.Query().Get("from")
	rawTo := r.URL.Query().Get("to")

	if rawFrom == "" && rawTo == "" {
		now := time.Now().UTC()
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), nil
	}

	from, err := time.Parse("2006-01-02", rawFrom)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid from date")
	}
	to, err := time.Parse("2006-01-02", rawTo)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid to date")
	}
	return from, to.AddDate(0, 0, 1), nil
}
