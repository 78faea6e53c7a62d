package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/metalyard/metalyard/internal/app"
	"github.com/metalyard/metalyard/internal/catalog"
	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/platform/cache"
	"github.com/metalyard/metalyard/internal/platform/db"
	"github.com/metalyard/metalyard/internal/stock"
	"github.com/metalyard/metalyard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	ledgerStore := ledger.NewStore(pool)
	ledgerEngine := ledger.NewEngine(ledgerStore, ledger.Config{
		AllowNegativeBalance: cfg.LedgerAllowNegative,
	})

	catalogRepo := catalog.NewRepository(pool)
	catalogCache := catalog.NewRefCache(redisClient, catalogRepo, cfg.CatalogCacheTTL, logger)
	catalogService := catalog.NewService(catalogRepo, catalogCache)

	stockService := stock.NewService(catalogService, ledgerEngine)

	scanTask, err := jobs.NewLowStockScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: jobs.NewLowStockScanHandler(stockService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
