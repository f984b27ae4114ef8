package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arikurniawan9/toko-sakinah/internal/notifications"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationDispatch delivers a store notification raised by a committed write.
	TaskNotificationDispatch = "notification:dispatch"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NotificationDispatchPayload carries a pending distribution notice.
type NotificationDispatchPayload struct {
	Distribution notifications.DistributionPending `json:"distribution"`
}

// NewNotificationDispatchTask constructs an Asynq task.
func NewNotificationDispatchTask(notice notifications.DistributionPending) (*asynq.Task, error) {
	data, err := json.Marshal(NotificationDispatchPayload{Distribution: notice})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// IdempotencyCleanupPayload holds the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the retention task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
