package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockpile-erp/stockpile/internal/app"
	"github.com/stockpile-erp/stockpile/internal/batch"
	"github.com/stockpile-erp/stockpile/internal/observability"
	"github.com/stockpile-erp/stockpile/internal/platform/cache"
	platformdb "github.com/stockpile-erp/stockpile/internal/platform/db"
	"github.com/stockpile-erp/stockpile/internal/reservation"
	"github.com/stockpile-erp/stockpile/internal/serial"
	"github.com/stockpile-erp/stockpile/internal/shared"
	"github.com/stockpile-erp/stockpile/internal/stock"
	"github.com/stockpile-erp/stockpile/internal/valuation"
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

	pool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var locker shared.Locker = shared.NewKeyMutex()
	if cfg.DistributedLocks {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		locker = shared.NewRedisLocker(redisClient, 30*time.Second)
	}

	metrics := observability.NewMetrics()
	idempotency := shared.NewIdempotencyStore(pool)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, locker, idempotency, logger, metrics, stock.ServiceConfig{
		AdjustmentBypassesReservations: cfg.AdjustmentBypassesReservations,
		ReceiptChunkSize:               cfg.ReceiptChunkSize,
	})

	reservationRepo := reservation.NewRepository(pool)
	reservationService := reservation.NewService(reservationRepo, locker, logger)

	valuationRepo := valuation.NewRepository(pool)
	valuationService := valuation.NewService(valuationRepo, logger)

	batchRepo := batch.NewRepository(pool)
	batchService := batch.NewService(batchRepo, logger)

	serialRepo := serial.NewRepository(pool)
	serialService := serial.NewService(serialRepo, logger, serial.ServiceConfig{
		BulkChunkSize: cfg.SerialBulkChunkSize,
		MaxBulkCount:  cfg.SerialMaxBulkCount,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		StockHandler:       stock.NewHandler(logger, stockService),
		ReservationHandler: reservation.NewHandler(logger, reservationService),
		ValuationHandler:   valuation.NewHandler(logger, valuationService, cfg.AgingBuckets),
		BatchHandler:       batch.NewHandler(logger, batchService),
		SerialHandler:      serial.NewHandler(logger, serialService),
		Pool:               pool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
