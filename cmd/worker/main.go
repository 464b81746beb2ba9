package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mainstay-ops/mainstay/internal/app"
	"github.com/mainstay-ops/mainstay/internal/ledger"
	"github.com/mainstay-ops/mainstay/internal/platform/cache"
	"github.com/mainstay-ops/mainstay/internal/platform/db"
	"github.com/mainstay-ops/mainstay/internal/reconcile"
	"github.com/mainstay-ops/mainstay/internal/sheet"
	"github.com/mainstay-ops/mainstay/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	parser := sheet.NewParser(logger, cfg.SheetName)
	exporter := sheet.NewExporter(logger, cfg.SheetPath, cfg.SheetName)

	repo := ledger.NewRepository(pool)
	usageCache := ledger.NewUsageCache(redisClient, cfg.UsageCacheTTL)
	coordinator := reconcile.New(logger, parser, repo, cfg.SheetPath, cfg.SheetAutoSync, nil, usageCache)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskSheetPushQuantities, Handler: jobs.NewSheetPushHandler(exporter, nil, logger)},
		{Type: jobs.TaskSheetReconcile, Handler: jobs.NewSheetReconcileHandler(coordinator, logger)},
	}

	var cron []jobs.CronRegistration
	if cfg.SheetAutoSync {
		reconcileTask, err := jobs.NewSheetReconcileTask(time.Now().UTC())
		if err != nil {
			logger.Error("build reconcile task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ReconcileCron, Task: reconcileTask})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.String("redis", cfg.RedisAddr),
		slog.Bool("auto_sync", cfg.SheetAutoSync))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
