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

	"github.com/stockpile-erp/stockpile/internal/app"
	"github.com/stockpile-erp/stockpile/internal/batch"
	platformdb "github.com/stockpile-erp/stockpile/internal/platform/db"
	"github.com/stockpile-erp/stockpile/internal/stock"
	"github.com/stockpile-erp/stockpile/jobs"
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

	pool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	stockRepo := stock.NewRepository(pool)
	batchRepo := batch.NewRepository(pool)
	batchService := batch.NewService(batchRepo, logger)

	now := time.Now().UTC()
	expiryTask, err := jobs.NewBatchExpiryTask(now)
	if err != nil {
		logger.Error("build batch expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(now)
	if err != nil {
		logger.Error("build ledger integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBatchExpiry, Handler: jobs.BatchExpiryHandler(batchService, logger)},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.LedgerIntegrityHandler(stockRepo, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
