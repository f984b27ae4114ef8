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

	"github.com/arikurniawan9/toko-sakinah/internal/app"
	"github.com/arikurniawan9/toko-sakinah/internal/ar"
	"github.com/arikurniawan9/toko-sakinah/internal/distribution"
	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/notifications"
	"github.com/arikurniawan9/toko-sakinah/internal/observability"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/cache"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/sales"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
	"github.com/arikurniawan9/toko-sakinah/jobs"
)

func main() {
	if app.SkipStartup(app.ProcessAPI) {
		slog.Default().Info("startup skipped", slog.String("process", app.ProcessAPI))
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "sakinah-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	domainMetrics := metrics.Domain()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	locker := cache.NewLocker(redisClient)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	notificationRepo := notifications.NewRepository(dbpool)
	notificationService := notifications.NewService(notificationRepo, redisClient, logger)
	notifier := jobs.NewQueueingNotifier(jobClient, notificationService, logger)

	salesRepo := sales.NewRepository(dbpool, cfg.TxTimeout)
	salesService := sales.NewService(salesRepo, auditLogger, idempotencyStore, domainMetrics, logger)

	arRepo := ar.NewRepository(dbpool, cfg.TxTimeout)
	arService := ar.NewService(arRepo, locker, auditLogger, idempotencyStore, domainMetrics, logger, ar.Config{LockTTL: cfg.PaymentLockTTL})

	distributionRepo := distribution.NewRepository(dbpool, cfg.TxTimeout)
	warehouses := distribution.NewNamedWarehouseResolver(distributionRepo, cfg.CentralWarehouseName)
	central, err := warehouses.Resolve(ctx)
	if err != nil {
		logger.Error("provision central warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("central warehouse ready", slog.Int64("id", central.ID), slog.String("name", central.Name))
	distributionService := distribution.NewService(distributionRepo, warehouses, auditLogger, notifier, idempotencyStore, domainMetrics, logger)

	inventoryRepo := inventory.NewRepository(dbpool)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		SalesHandler:         sales.NewHandler(logger, salesService),
		DistributionHandler:  distribution.NewHandler(logger, distributionService),
		ARHandler:            ar.NewHandler(logger, arService),
		InventoryHandler:     inventory.NewHandler(logger, inventoryRepo),
		NotificationsHandler: notifications.NewHandler(logger, notificationService),
		JobHandler:           jobs.NewHandler(inspector, logger),
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
