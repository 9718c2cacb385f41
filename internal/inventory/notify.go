package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// NotificationKind identifies the message template.
type NotificationKind string

const (
	// NotificationLowStock alerts the admin that a product needs restocking.
	NotificationLowStock NotificationKind = "low_stock"
	// NotificationOrderPlaced confirms a customer order.
	NotificationOrderPlaced NotificationKind = "order_placed"
)

// Notification is the payload handed to a delivery channel.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	Recipient      string           `json:"to_email"`
	RecipientName  string           `json:"customer_name,omitempty"`
	ProductID      int64            `json:"product_id"`
	ProductName    string           `json:"product_name"`
	Quantity       int64            `json:"quantity"`
	StatusMessage  string           `json:"status_message"`
	TransactionRef string           `json:"transaction_ref,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Notifier delivers a notification. Implementations may be slow or fail.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationDispatcher hands notifications off without blocking the caller.
type NotificationDispatcher interface {
	Dispatch(n Notification) bool
}

// MetricsRecorder receives inventory counters.
type MetricsRecorder interface {
	ObserveMovement(kind, outcome string)
	ObserveNotification(kind, outcome string)
}

// LowStockMessage renders the admin alert text.
func LowStockMessage(productName string, remaining int64) string {
	return fmt.Sprintf("Stock is low for this product: %s. Only %d items left!", productName, remaining)
}

// OrderPlacedMessage is the confirmation text sent to customers.
const OrderPlacedMessage = "Your order has been successfully placed!"

// DispatcherConfig sizes the dispatcher.
type DispatcherConfig struct {
	Buffer  int
	Workers int
	Timeout time.Duration
}

// Dispatcher delivers notifications from a bounded queue on worker goroutines.
// Dispatch never blocks; a full queue drops the notification.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	metrics  MetricsRecorder
	cfg      DispatcherConfig

	queue chan Notification
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher constructs a Dispatcher. Call Start before dispatching.
func NewDispatcher(notifier Notifier, logger *slog.Logger, cfg DispatcherConfig, metrics MetricsRecorder) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		queue:    make(chan Notification, cfg.Buffer),
	}
}

// Start launches the worker goroutines. Subsequent calls are no-ops.
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
	})
}

// Dispatch enqueues n and reports whether it was accepted.
func (d *Dispatcher) Dispatch(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.observe(n.Kind, "dropped")
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		d.logger.Warn("notification dropped, queue full", slog.String("kind", string(n.Kind)), slog.Int64("product_id", n.ProductID))
		d.observe(n.Kind, "dropped")
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.Start()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification panic", slog.Any("panic", r), slog.String("kind", string(n.Kind)))
			d.observe(n.Kind, "failed")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	if err := d.notifier.Send(ctx, n); err != nil {
		d.logger.Error("notification delivery failed",
			slog.Any("error", fmt.Errorf("%w: %w", shared.ErrNotificationDelivery, err)),
			slog.String("kind", string(n.Kind)),
			slog.Int64("product_id", n.ProductID))
		d.observe(n.Kind, "failed")
		return
	}
	d.observe(n.Kind, "sent")
}

func (d *Dispatcher) observe(kind NotificationKind, outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveNotification(string(kind), outcome)
	}
}

// DefaultLowStockThreshold is used when no threshold is configured.
const DefaultLowStockThreshold = 2

// LowStockTrigger emits an alert when post-decrement stock is at or below threshold.
type LowStockTrigger struct {
	threshold  int64
	recipient  string
	dispatcher NotificationDispatcher
	now        func() time.Time
}

// NewLowStockTrigger builds a trigger. A negative threshold falls back to
// DefaultLowStockThreshold.
func NewLowStockTrigger(threshold int64, recipient string, dispatcher NotificationDispatcher) *LowStockTrigger {
	if threshold < 0 {
		threshold = DefaultLowStockThreshold
	}
	return &LowStockTrigger{threshold: threshold, recipient: recipient, dispatcher: dispatcher, now: time.Now}
}

// Threshold returns the configured low-stock level.
func (t *LowStockTrigger) Threshold() int64 { return t.threshold }

// Evaluate reports whether product is low on stock and, if so, dispatches an
// alert. Dispatch outcome does not affect the result.
func (t *LowStockTrigger) Evaluate(_ context.Context, product Product) bool {
	if product.StockQuantity > t.threshold {
		return false
	}
	if t.dispatcher != nil {
		t.dispatcher.Dispatch(Notification{
			Kind:          NotificationLowStock,
			Recipient:     t.recipient,
			ProductID:     product.ID,
			ProductName:   product.Name,
			Quantity:      product.StockQuantity,
			StatusMessage: LowStockMessage(product.Name, product.StockQuantity),
			CreatedAt:     t.now().UTC(),
		})
	}
	return true
}

// LogNotifier writes notifications to a logger instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs n.
func (n *LogNotifier) Send(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", msg.Recipient),
		slog.String("product", msg.ProductName),
		slog.Int64("quantity", msg.Quantity),
		slog.String("message", msg.StatusMessage))
	return nil
}
