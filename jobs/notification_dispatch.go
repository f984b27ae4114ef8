package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/arikurniawan9/toko-sakinah/internal/jobs"
	"github.com/arikurniawan9/toko-sakinah/internal/notifications"
)

// DistributionNotifier is satisfied by notifications.Service.
type DistributionNotifier interface {
	DistributionPending(ctx context.Context, notice notifications.DistributionPending) error
}

// NotificationDispatchJob delivers queued notices.
type NotificationDispatchJob struct {
	Notifier DistributionNotifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewNotificationDispatchJob initialises the dispatch handler.
func NewNotificationDispatchJob(notifier DistributionNotifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationDispatchJob {
	return &NotificationDispatchJob{Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotificationDispatch tasks.
func (j *NotificationDispatchJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Notifier == nil {
		return errors.New("notification dispatch: handler not configured")
	}
	var payload NotificationDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notification dispatch payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskNotificationDispatch)
	defer func() {
		err = tracker.End(err)
	}()

	notice := payload.Distribution
	if err := j.Notifier.DistributionPending(ctx, notice); err != nil {
		j.logger().Warn("dispatch notification",
			slog.Int64("store_id", notice.StoreID),
			slog.String("invoice", notice.InvoiceNumber),
			slog.Any("error", err))
		return err
	}
	return nil
}

func (j *NotificationDispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Enqueuer submits tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueingNotifier hands distribution notices to the worker and calls the
// notifier inline when the queue is unavailable.
type QueueingNotifier struct {
	queue    Enqueuer
	fallback DistributionNotifier
	logger   *slog.Logger
}

// NewQueueingNotifier builds a QueueingNotifier. queue may be nil.
func NewQueueingNotifier(queue Enqueuer, fallback DistributionNotifier, logger *slog.Logger) *QueueingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueingNotifier{queue: queue, fallback: fallback, logger: logger}
}

// DistributionPending implements distribution.Notifier.
func (n *QueueingNotifier) DistributionPending(ctx context.Context, notice notifications.DistributionPending) error {
	if n.queue != nil {
		task, err := NewNotificationDispatchTask(notice)
		if err != nil {
			return err
		}
		_, err = n.queue.EnqueueContext(ctx, task)
		if err == nil {
			return nil
		}
		n.logger.Warn("enqueue notification, delivering inline", slog.String("invoice", notice.InvoiceNumber), slog.Any("error", err))
	}
	if n.fallback == nil {
		return errors.New("notification: no queue and no notifier")
	}
	return n.fallback.DistributionPending(ctx, notice)
}
