package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/metalyard/metalyard/internal/catalog"
	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/observability"
	"github.com/metalyard/metalyard/internal/reports"
	"github.com/metalyard/metalyard/internal/stock"
	"github.com/metalyard/metalyard/internal/trading"
	"github.com/metalyard/metalyard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	CatalogHandler *catalog.Handler
	TradingHandler *trading.Handler
	LedgerHandler  *ledger.Handler
	StockHandler   *stock.Handler
	ReportsHandler *reports.Handler
	JobsHandler    *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with the full middleware stack and
// every API surface mounted under /api.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.TradingHandler != nil {
			params.TradingHandler.MountRoutes(r)
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.StockHandler != nil {
			params.StockHandler.MountRoutes(r)
		}
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
