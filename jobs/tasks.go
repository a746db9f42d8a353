package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBatchExpiry sweeps due batches and persists expired status.
	TaskBatchExpiry = "batch:expiry"
	// TaskLedgerIntegrity checks layer conservation against the ledger.
	TaskLedgerIntegrity = "ledger:integrity"
)

// SweepPayload carries scheduling metadata shared by the sweep tasks.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewBatchExpiryTask constructs the batch expiry sweep task.
func NewBatchExpiryTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchExpiry, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityTask constructs the ledger integrity check task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
