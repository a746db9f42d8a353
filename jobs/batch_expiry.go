package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockpile-erp/stockpile/internal/batch"
)

// BatchExpiryHandler persists expired status for batches whose expiry
// date has passed. Reads already resolve expiry lazily; the sweep
// keeps the stored flag in step for consumers querying the table
// directly.
func BatchExpiryHandler(service *batch.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		count, err := service.SweepExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("batch expiry sweep finished",
			slog.String("job", TaskBatchExpiry),
			slog.Int64("expired", count))
		return nil
	}
}
