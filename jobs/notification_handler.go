package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/mail"
)

// NotificationHandler renders queued notifications and sends them by email.
type NotificationHandler struct {
	Sender  mail.Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	printer *message.Printer
}

// NewNotificationHandler constructs the notify:send handler.
func NewNotificationHandler(sender mail.Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationHandler {
	return &NotificationHandler{
		Sender:  sender,
		Logger:  logger,
		Metrics: metrics,
		printer: message.NewPrinter(language.English),
	}
}

// Handle delivers one notification.
func (h *NotificationHandler) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if h == nil || h.Sender == nil {
		return errors.New("notification handler: not configured")
	}
	tracker := h.Metrics.Track(TaskNotifySend)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var n inventory.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("notification handler: decode: %v: %w", err, asynq.SkipRetry)
	}
	msg, err := h.Render(n)
	if err != nil {
		return fmt.Errorf("notification handler: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.Sender.Send(ctx, msg); err != nil {
		h.logger().WarnContext(ctx, "notification send failed",
			slog.String("kind", string(n.Kind)),
			slog.Int64("product_id", n.ProductID),
			slog.Any("error", err))
		return err
	}
	h.logger().InfoContext(ctx, "notification sent",
		slog.String("kind", string(n.Kind)),
		slog.Int64("product_id", n.ProductID))
	return nil
}

// Render builds the email for n.
func (h *NotificationHandler) Render(n inventory.Notification) (mail.Message, error) {
	if strings.TrimSpace(n.Recipient) == "" {
		return mail.Message{}, errors.New("recipient missing")
	}
	p := h.printer
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	var body strings.Builder
	var subject string
	switch n.Kind {
	case inventory.NotificationLowStock:
		subject = "Low stock: " + n.ProductName
		body.WriteString(n.StatusMessage + "\n\n")
		body.WriteString(p.Sprintf("Product: %s (#%d)\n", n.ProductName, n.ProductID))
		body.WriteString(p.Sprintf("Remaining: %d\n", n.Quantity))
	case inventory.NotificationOrderPlaced:
		subject = "Order confirmation: " + n.ProductName
		name := n.RecipientName
		if name == "" {
			name = "customer"
		}
		body.WriteString("Hi " + name + ",\n\n")
		body.WriteString(n.StatusMessage + "\n\n")
		body.WriteString(p.Sprintf("Product: %s\n", n.ProductName))
		body.WriteString(p.Sprintf("Quantity: %d\n", n.Quantity))
		if n.TransactionRef != "" {
			body.WriteString("Reference: " + n.TransactionRef + "\n")
		}
	default:
		return mail.Message{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	return mail.Message{To: n.Recipient, Subject: subject, Body: body.String()}, nil
}

func (h *NotificationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
