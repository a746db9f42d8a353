package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockpile-erp/stockpile/internal/stock"
)

// LedgerIntegrityHandler compares layer remainders against the signed
// ledger sum per stock key. Any drift is a defect; the job only
// reports, it never repairs.
func LedgerIntegrityHandler(repo *stock.Repository, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		drifts, err := repo.ConservationDrift(ctx)
		if err != nil {
			return err
		}
		if len(drifts) == 0 {
			logger.Info("ledger integrity check passed", slog.String("job", TaskLedgerIntegrity))
			return nil
		}
		for _, drift := range drifts {
			logger.Error("layer conservation drift detected",
				slog.String("job", TaskLedgerIntegrity),
				slog.String("key", drift.Key.String()),
				slog.String("layer_qty", drift.LayerQty.String()),
				slog.String("ledger_qty", drift.LedgerQty.String()))
		}
		return nil
	}
}
