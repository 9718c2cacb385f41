package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifySend delivers an inventory notification by email.
	TaskNotifySend = "notify:send"
	// TaskLowStockSweep re-checks every product against the low-stock threshold.
	TaskLowStockSweep = "inventory:low_stock_sweep"
	// TaskIdempotencyCleanup expires old customer order replay keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NotificationMaxRetry bounds redelivery attempts for a single notification.
const NotificationMaxRetry = 5

// DefaultKeyRetention is used when a cleanup payload omits a retention.
const DefaultKeyRetention = 72 * time.Hour

// NewNotificationTask wraps a notification as an Asynq task.
func NewNotificationTask(n inventory.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifySend, data, asynq.MaxRetry(NotificationMaxRetry), asynq.Queue(QueueDefault)), nil
}

// NewLowStockSweepTask builds the periodic sweep task.
func NewLowStockSweepTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockSweep, nil, asynq.MaxRetry(1))
}

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds the periodic cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(1)), nil
}
