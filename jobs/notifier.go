package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Enqueuer submits notification tasks.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, n inventory.Notification) (*asynq.TaskInfo, error)
}

// Notifier hands inventory notifications to the job queue so email delivery
// gets Asynq's retry and backoff.
type Notifier struct {
	enqueuer Enqueuer
}

// NewNotifier constructs a queue-backed notifier.
func NewNotifier(enqueuer Enqueuer) *Notifier {
	return &Notifier{enqueuer: enqueuer}
}

// Send enqueues n.
func (n *Notifier) Send(ctx context.Context, msg inventory.Notification) error {
	if n == nil || n.enqueuer == nil {
		return fmt.Errorf("jobs notifier: %w", shared.ErrNotificationDelivery)
	}
	if _, err := n.enqueuer.EnqueueNotification(ctx, msg); err != nil {
		return fmt.Errorf("jobs notifier: enqueue %s: %w", msg.Kind, err)
	}
	return nil
}

var _ inventory.Notifier = (*Notifier)(nil)
