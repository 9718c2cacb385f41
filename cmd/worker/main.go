package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/mail"
	"github.com/odyssey-erp/odyssey-stock/jobs"
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
	metrics := observability.NewMetrics()

	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer backends.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	// Sweep alerts go back through the queue so the worker's handler sends them.
	dispatcher := inventory.NewDispatcher(jobs.NewNotifier(client), logger, inventory.DispatcherConfig{
		Buffer:  cfg.NotifyBuffer,
		Workers: cfg.NotifyWorkers,
		Timeout: cfg.NotifyTimeout,
	}, metrics)
	dispatcher.Start()
	defer dispatcher.Close()

	inventoryService := inventory.NewService(inventory.ServiceDeps{
		Store:      backends.Store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}, inventory.ServiceConfig{
		LowStockThreshold: &cfg.LowStockThreshold,
		AdminEmail:        cfg.AdminEmail,
	})

	var sender mail.Sender = mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if cfg.NotifyDriver == app.NotifyDriverLog {
		sender = mail.LogSender{Logger: logger}
	}

	notificationHandler := jobs.NewNotificationHandler(sender, logger, metrics.Jobs())
	sweepJob := jobs.NewLowStockSweepJob(inventoryService, logger, metrics.Jobs())
	cleanupJob := jobs.NewIdempotencyCleanupJob(backends.Idempotency, logger, metrics.Jobs())

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	loc, err := cfg.ReportLocation()
	if err != nil {
		logger.Error("report location", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotifySend, Handler: notificationHandler.Handle},
			{Type: jobs.TaskLowStockSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockSweepCron, Task: jobs.NewLowStockSweepTask()},
			{Spec: cfg.IdempotencyCleanCron, Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
