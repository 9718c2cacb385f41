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

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/reporting"
	"github.com/odyssey-erp/odyssey-stock/jobs"
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
	metrics := observability.NewMetrics()

	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer backends.Close()

	redisClient := cache.NewClient(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	var notifier inventory.Notifier = inventory.NewLogNotifier(logger)
	var inspector *asynq.Inspector
	if cfg.NotifyDriver == app.NotifyDriverAsynq {
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
		notifier = jobs.NewNotifier(client)
		inspector = asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}

	dispatcher := inventory.NewDispatcher(notifier, logger, inventory.DispatcherConfig{
		Buffer:  cfg.NotifyBuffer,
		Workers: cfg.NotifyWorkers,
		Timeout: cfg.NotifyTimeout,
	}, metrics)
	dispatcher.Start()
	defer dispatcher.Close()

	loc, err := cfg.ReportLocation()
	if err != nil {
		logger.Error("report location", slog.Any("error", err))
		os.Exit(1)
	}
	reportCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL, metrics)

	inventoryService := inventory.NewService(inventory.ServiceDeps{
		Store:       backends.Store,
		Dispatcher:  dispatcher,
		Audit:       backends.Audit,
		Idempotency: backends.Idempotency,
		Observers:   []inventory.MovementObserver{reportCache},
		Metrics:     metrics,
		Logger:      logger,
	}, inventory.ServiceConfig{
		LowStockThreshold:    &cfg.LowStockThreshold,
		AdminEmail:           cfg.AdminEmail,
		RecordFailedAttempts: cfg.RecordFailedAttempts,
		Location:             loc,
	})
	reportingService := reporting.NewService(backends.Store, reportCache, loc, logger)

	health := map[string]app.HealthChecker{
		"redis": func(r *http.Request) error { return cache.Ping(r.Context(), redisClient) },
	}
	if check := backends.HealthCheck(); check != nil {
		health["postgres"] = check
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		ReportingHandler: reporting.NewHandler(logger, reportingService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Health:           health,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.String("notify", cfg.NotifyDriver))
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
