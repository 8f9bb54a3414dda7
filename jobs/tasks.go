package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLotExpiryScan flags active lots whose expiry date has passed.
	TaskLotExpiryScan = "stock:lot_expiry_scan"
	// TaskStockIntegrity sweeps balances for available-quantity drift.
	TaskStockIntegrity = "stock:integrity_check"
)

// ScanPayload carries scheduling metadata shared by the periodic scans.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLotExpiryScanTask constructs an Asynq task for the lot expiry scan.
func NewLotExpiryScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLotExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// NewStockIntegrityTask constructs an Asynq task for the integrity sweep.
func NewStockIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, body, asynq.Queue(QueueDefault)), nil
}
