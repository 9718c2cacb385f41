package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const idempotencyModule = "orders"

// ServiceDeps groups collaborators of Service. Only Store is required.
type ServiceDeps struct {
	Store       Store
	Dispatcher  NotificationDispatcher
	Audit       shared.AuditRecorder
	Idempotency shared.IdempotencyChecker
	Observers   []MovementObserver
	Metrics     MetricsRecorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// LowStockThreshold is the stock level at or below which an alert is
	// raised. Nil means DefaultLowStockThreshold; an explicit 0 alerts only
	// when a product runs out.
	LowStockThreshold    *int64
	AdminEmail           string
	RecordFailedAttempts bool
	Location             *time.Location
}

// Service coordinates purchases, sales, customer orders and returns.
type Service struct {
	store       Store
	ledger      *Ledger
	recorder    *Recorder
	trigger     *LowStockTrigger
	dispatcher  NotificationDispatcher
	audit       shared.AuditRecorder
	idempotency shared.IdempotencyChecker
	observers   []MovementObserver
	metrics     MetricsRecorder
	logger      *slog.Logger
	now         func() time.Time
	cfg         ServiceConfig
}

// NewService builds Service.
func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	threshold := int64(DefaultLowStockThreshold)
	if cfg.LowStockThreshold != nil {
		threshold = *cfg.LowStockThreshold
	}
	trigger := NewLowStockTrigger(threshold, cfg.AdminEmail, deps.Dispatcher)
	trigger.now = deps.Clock
	return &Service{
		store:       deps.Store,
		ledger:      NewLedger(deps.Store),
		recorder:    NewRecorder(deps.Clock),
		trigger:     trigger,
		dispatcher:  deps.Dispatcher,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		observers:   deps.Observers,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Clock,
		cfg:         cfg,
	}
}

// Purchase receives stock from a supplier.
func (s *Service) Purchase(ctx context.Context, input PurchaseInput) (FulfillmentResult, error) {
	if err := requireRefs(input.ProductID, input.Quantity); err != nil {
		return FulfillmentResult{}, err
	}
	if input.SupplierID <= 0 {
		return FulfillmentResult{}, ErrSupplierRequired
	}
	if _, err := s.store.GetSupplier(ctx, input.SupplierID); err != nil {
		return FulfillmentResult{}, s.classify(err)
	}
	return s.apply(ctx, movement{
		kind:        KindPurchase,
		productID:   input.ProductID,
		qty:         input.Quantity,
		supplierID:  input.SupplierID,
		actorID:     input.ActorID,
		description: input.Description,
		note:        input.Note,
	})
}

// Sell takes stock out for a staff sale.
func (s *Service) Sell(ctx context.Context, input SellInput) (FulfillmentResult, error) {
	if err := requireRefs(input.ProductID, input.Quantity); err != nil {
		return FulfillmentResult{}, err
	}
	m := movement{
		kind:        KindSale,
		productID:   input.ProductID,
		qty:         input.Quantity,
		actorID:     input.ActorID,
		description: input.Description,
		note:        input.Note,
	}
	if err := s.precheck(ctx, m); err != nil {
		return FulfillmentResult{}, err
	}
	return s.apply(ctx, m)
}

// PlaceCustomerOrder takes stock out for a storefront order and confirms it to
// the customer.
func (s *Service) PlaceCustomerOrder(ctx context.Context, input CustomerOrderInput) (FulfillmentResult, error) {
	if input.CustomerID <= 0 {
		return FulfillmentResult{}, ErrCustomerRequired
	}
	if err := requireRefs(input.ProductID, input.Quantity); err != nil {
		return FulfillmentResult{}, err
	}
	customer, err := s.store.GetCustomer(ctx, input.CustomerID)
	if err != nil {
		return FulfillmentResult{}, s.classify(err)
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	insertedKey := false
	if key != "" && s.idempotency != nil {
		key = fmt.Sprintf("order:%d:%s", input.CustomerID, key)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return FulfillmentResult{}, err
			}
			return FulfillmentResult{}, s.classify(err)
		}
		insertedKey = true
	}

	m := movement{
		kind:       KindCustomerOrder,
		productID:  input.ProductID,
		qty:        input.Quantity,
		customerID: input.CustomerID,
		actorID:    input.CustomerID,
	}
	result, err := s.precheckAndApply(ctx, m)
	if err != nil {
		if insertedKey {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return FulfillmentResult{}, err
	}

	if s.dispatcher != nil && customer.Email != "" {
		s.dispatcher.Dispatch(Notification{
			Kind:           NotificationOrderPlaced,
			Recipient:      customer.Email,
			RecipientName:  customer.Name,
			ProductID:      result.Product.ID,
			ProductName:    result.Product.Name,
			Quantity:       result.Transaction.Quantity,
			StatusMessage:  OrderPlacedMessage,
			TransactionRef: result.Transaction.Reference,
			CreatedAt:      s.now().UTC(),
		})
	}
	return result, nil
}

// ReturnToSupplier sends stock back to a supplier.
func (s *Service) ReturnToSupplier(ctx context.Context, input ReturnInput) (FulfillmentResult, error) {
	if err := requireRefs(input.ProductID, input.Quantity); err != nil {
		return FulfillmentResult{}, err
	}
	if input.SupplierID <= 0 {
		return FulfillmentResult{}, ErrSupplierRequired
	}
	if _, err := s.store.GetSupplier(ctx, input.SupplierID); err != nil {
		return FulfillmentResult{}, s.classify(err)
	}
	return s.precheckAndApply(ctx, movement{
		kind:        KindReturnToSupplier,
		productID:   input.ProductID,
		qty:         input.Quantity,
		supplierID:  input.SupplierID,
		actorID:     input.ActorID,
		description: input.Description,
		note:        input.Note,
	})
}

// GetStock returns the current stock of a product.
func (s *Service) GetStock(ctx context.Context, productID int64) (int64, error) {
	qty, err := s.ledger.GetStock(ctx, productID)
	if err != nil {
		return 0, s.classify(err)
	}
	return qty, nil
}

// GetProduct returns a catalog product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductRequired
	}
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, s.classify(err)
	}
	if product.Deleted {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

// ListProducts returns the non-deleted catalog.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, s.classify(err)
	}
	return products, nil
}

// SearchProducts returns catalog products whose name or description contains
// term. A blank term lists the whole catalog.
func (s *Service) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.ListProducts(ctx)
	}
	products, err := s.store.SearchProducts(ctx, term)
	if err != nil {
		return nil, s.classify(err)
	}
	return products, nil
}

// ListTransactions pages through history, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	filter.Page, filter.Size = shared.NormalizePage(filter.Page, filter.Size)
	filter.Search = strings.TrimSpace(filter.Search)
	items, total, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return TransactionPage{}, s.classify(err)
	}
	if items == nil {
		items = []Transaction{}
	}
	return TransactionPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.Size, total)}, nil
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, fmt.Errorf("inventory: transaction id is required: %w", shared.ErrValidation)
	}
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, s.classify(err)
	}
	return tx, nil
}

// TransactionsByMonth returns transactions created in the given calendar month
// of the configured location, oldest first.
func (s *Service) TransactionsByMonth(ctx context.Context, month, year int) ([]Transaction, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, ErrInvalidPeriod
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.cfg.Location)
	to := from.AddDate(0, 1, 0)
	txs, err := s.store.TransactionsBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, s.classify(err)
	}
	return txs, nil
}

// SweepLowStock re-evaluates every product and alerts on those at or below
// the threshold. It returns the number of alerts raised.
func (s *Service) SweepLowStock(ctx context.Context) (int, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return 0, err
	}
	raised := 0
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return raised, err
		}
		if s.trigger.Evaluate(ctx, p) {
			raised++
		}
	}
	return raised, nil
}

type movement struct {
	kind        TransactionKind
	productID   int64
	qty         int64
	supplierID  int64
	customerID  int64
	actorID     int64
	description string
	note        string
}

func (m movement) recordInput() RecordInput {
	return RecordInput{
		Kind:        m.kind,
		ProductID:   m.productID,
		Quantity:    m.qty,
		SupplierID:  m.supplierID,
		CustomerID:  m.customerID,
		Description: m.description,
		Note:        m.note,
	}
}

func (s *Service) precheckAndApply(ctx context.Context, m movement) (FulfillmentResult, error) {
	if err := s.precheck(ctx, m); err != nil {
		return FulfillmentResult{}, err
	}
	return s.apply(ctx, m)
}

// precheck rejects decrements that cannot succeed before opening a unit. The
// ledger repeats the check under the product lock.
func (s *Service) precheck(ctx context.Context, m movement) error {
	stock, err := s.ledger.GetStock(ctx, m.productID)
	if err != nil {
		return s.classify(err)
	}
	if m.qty > stock {
		err := insufficientStock(m.productID, m.qty, stock)
		s.observeMovement(m.kind, "rejected")
		s.recordFailed(ctx, m, err)
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, m movement) (FulfillmentResult, error) {
	var result FulfillmentResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var (
			product Product
			err     error
		)
		if m.kind.Decrements() {
			product, err = s.ledger.DecreaseStock(ctx, tx, m.productID, m.qty)
		} else {
			product, err = s.ledger.IncreaseStock(ctx, tx, m.productID, m.qty)
		}
		if err != nil {
			return err
		}
		in := m.recordInput()
		in.UnitPrice = product.Price
		entry, err := s.recorder.Record(ctx, tx, in)
		if err != nil {
			return err
		}
		result = FulfillmentResult{Transaction: entry, Product: product}
		return nil
	})
	if err != nil {
		err = s.classify(err)
		if errors.Is(err, ErrInsufficientStock) {
			s.observeMovement(m.kind, "rejected")
			s.recordFailed(ctx, m, err)
		} else {
			s.observeMovement(m.kind, "failed")
		}
		return FulfillmentResult{}, err
	}
	s.observeMovement(m.kind, "completed")

	if m.kind.Decrements() {
		result.LowStock = s.trigger.Evaluate(ctx, result.Product)
	}
	s.afterCommit(ctx, m, result)
	return result, nil
}

func (s *Service) afterCommit(ctx context.Context, m movement, result FulfillmentResult) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  m.actorID,
			Action:   fmt.Sprintf("inventory:%s", strings.ToLower(string(m.kind))),
			Entity:   "inventory_transaction",
			EntityID: result.Transaction.Reference,
			Meta: map[string]any{
				"product_id":  m.productID,
				"quantity":    m.qty,
				"stock_after": result.Product.StockQuantity,
				"total_price": result.Transaction.TotalPrice.String(),
			},
			At: result.Transaction.CreatedAt,
		})
		if err != nil {
			s.logger.Warn("audit inventory movement", slog.Any("error", err))
		}
	}
	evt := MovementRecordedEvent{
		Transaction: result.Transaction,
		Product:     result.Product,
		LowStock:    result.LowStock,
		ActorID:     m.actorID,
		RecordedAt:  result.Transaction.CreatedAt,
	}
	for _, obs := range s.observers {
		if err := obs.HandleMovementRecorded(ctx, evt); err != nil {
			s.logger.Warn("movement observer failed",
				slog.String("reference", result.Transaction.Reference),
				slog.Any("error", err))
		}
	}
}

func (s *Service) recordFailed(ctx context.Context, m movement, cause error) {
	if !s.cfg.RecordFailedAttempts {
		return
	}
	in := m.recordInput()
	if product, err := s.store.GetProduct(ctx, m.productID); err == nil {
		in.UnitPrice = product.Price
	}
	if _, err := s.recorder.RecordFailed(ctx, s.store, in, cause); err != nil {
		s.logger.Warn("record failed attempt", slog.Int64("product_id", m.productID), slog.Any("error", err))
	}
}

func (s *Service) observeMovement(kind TransactionKind, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(kind), outcome)
	}
}

// classify keeps domain errors intact and marks everything else as a
// persistence failure. Cancelled or expired contexts stay matchable with
// errors.Is but surface as retryable.
func (s *Service) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrIdempotencyConflict),
		errors.Is(err, shared.ErrPersistence):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("inventory operation interrupted", slog.Any("error", err))
		return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	default:
		s.logger.Error("inventory persistence", slog.Any("error", err))
		return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}
}

func requireRefs(productID, qty int64) error {
	if productID <= 0 {
		return ErrProductRequired
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return nil
}
