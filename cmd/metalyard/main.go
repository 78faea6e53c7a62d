package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/metalyard/metalyard/internal/app"
	"github.com/metalyard/metalyard/internal/catalog"
	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/observability"
	"github.com/metalyard/metalyard/internal/platform/cache"
	"github.com/metalyard/metalyard/internal/platform/db"
	"github.com/metalyard/metalyard/internal/reports"
	"github.com/metalyard/metalyard/internal/shared"
	"github.com/metalyard/metalyard/internal/stock"
	"github.com/metalyard/metalyard/internal/trading"
	"github.com/metalyard/metalyard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	ledgerStore := ledger.NewStore(pool)
	ledgerEngine := ledger.NewEngine(ledgerStore, ledger.Config{
		AllowNegativeBalance: cfg.LedgerAllowNegative,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerEngine)

	catalogRepo := catalog.NewRepository(pool)
	catalogCache := catalog.NewRefCache(redisClient, catalogRepo, cfg.CatalogCacheTTL, logger)
	catalogService := catalog.NewService(catalogRepo, catalogCache)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	tradingRepo := trading.NewRepository(pool)
	tradingService := trading.NewService(tradingRepo, ledgerEngine, auditLogger, idempotencyStore, metrics)
	tradingHandler := trading.NewHandler(logger, tradingService)

	stockService := stock.NewService(catalogService, ledgerEngine)
	stockHandler := stock.NewHandler(logger, stockService)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(reportsRepo)
	reportsHandler := reports.NewHandler(logger, reportsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		TradingHandler: tradingHandler,
		LedgerHandler:  ledgerHandler,
		StockHandler:   stockHandler,
		ReportsHandler: reportsHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
