package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// LowStockSweeper re-evaluates all products against the low-stock threshold.
type LowStockSweeper interface {
	SweepLowStock(ctx context.Context) (int, error)
}

// LowStockSweepJob catches products that fell under the threshold without a
// delivered alert, for example when the notification queue was full.
type LowStockSweepJob struct {
	Sweeper LowStockSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockSweepJob constructs the sweep handler.
func NewLowStockSweepJob(sweeper LowStockSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep.
func (j *LowStockSweepJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("low stock sweep: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	raised, err := j.Sweeper.SweepLowStock(ctx)
	j.Metrics.AddLowStockAlerts(raised)
	if err != nil {
		j.Logger.ErrorContext(ctx, "low stock sweep failed", slog.Int("alerts", raised), slog.Any("error", err))
		return err
	}
	j.Logger.InfoContext(ctx, "low stock sweep completed", slog.Int("alerts", raised))
	return nil
}
