package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-erp/stockpile/internal/batch"
	"github.com/stockpile-erp/stockpile/internal/observability"
	"github.com/stockpile-erp/stockpile/internal/reservation"
	"github.com/stockpile-erp/stockpile/internal/serial"
	"github.com/stockpile-erp/stockpile/internal/stock"
	"github.com/stockpile-erp/stockpile/internal/valuation"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	StockHandler       *stock.Handler
	ReservationHandler *reservation.Handler
	ValuationHandler   *valuation.Handler
	BatchHandler       *batch.Handler
	SerialHandler      *serial.Handler
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.StockHandler != nil {
		params.StockHandler.MountRoutes(r)
	}
	if params.ReservationHandler != nil {
		params.ReservationHandler.MountRoutes(r)
	}
	if params.ValuationHandler != nil {
		params.ValuationHandler.MountRoutes(r)
	}
	if params.BatchHandler != nil {
		params.BatchHandler.MountRoutes(r)
	}
	if params.SerialHandler != nil {
		params.SerialHandler.MountRoutes(r)
	}

	return r
}
