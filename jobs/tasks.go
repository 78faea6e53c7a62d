// Package jobs defines background tasks and the Asynq worker that runs them.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/metalyard/metalyard/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan triggers the daily scan for materials below minimum.
	TaskLowStockScan = "stock:lowscan"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// StockScanner lists the materials currently below their minimum.
type StockScanner interface {
	LowStock(ctx context.Context) ([]stock.Snapshot, error)
}

// NewLowStockScanHandler builds the handler for TaskLowStockScan. The scan
// logs each material below minimum so the daily report lands in the log
// pipeline.
func NewLowStockScanHandler(scanner StockScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		low, err := scanner.LowStock(ctx)
		if err != nil {
			return err
		}
		if len(low) == 0 {
			logger.Info("low stock scan clean", slog.Time("scheduled_for", payload.ScheduledFor))
			return nil
		}
		for _, snap := range low {
			logger.Warn("material below minimum stock",
				slog.Int64("material_id", snap.MaterialID),
				slog.String("name", snap.Name),
				slog.String("balance", snap.CurrentBalance.String()),
				slog.String("minimum", snap.MinimumStock.String()),
			)
		}
		return nil
	}
}
