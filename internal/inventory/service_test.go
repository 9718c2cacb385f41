package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
}

func (d *recordingDispatcher) Dispatch(n Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return true
}

func (d *recordingDispatcher) byKind(kind NotificationKind) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Notification
	for _, n := range d.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	events []MovementRecordedEvent
	err    error
}

func (o *recordingObserver) HandleMovementRecorded(_ context.Context, evt MovementRecordedEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, evt)
	return o.err
}

func (o *recordingObserver) recorded() []MovementRecordedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]MovementRecordedEvent(nil), o.events...)
}

type countingMetrics struct {
	movements sync.Map
}

func (m *countingMetrics) ObserveMovement(kind, outcome string) {
	v, _ := m.movements.LoadOrStore(kind+":"+outcome, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (m *countingMetrics) ObserveNotification(string, string) {}

func (m *countingMetrics) count(key string) int64 {
	v, ok := m.movements.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

type testEnv struct {
	store      *MemoryStore
	dispatcher *recordingDispatcher
	observer   *recordingObserver
	metrics    *countingMetrics
	svc        *Service
}

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, stock int64, cfg ServiceConfig) *testEnv {
	t.Helper()
	store := NewMemoryStore()
	store.PutProduct(Product{ID: 1, Name: "Desk Lamp", SKU: "LMP-1", Price: decimal.RequireFromString("10.50"), StockQuantity: stock})
	store.PutProduct(Product{ID: 2, Name: "Retired Chair", SKU: "CHR-9", Price: decimal.NewFromInt(40), StockQuantity: 5, Deleted: true})
	store.PutSupplier(Supplier{ID: 1, Name: "Acme Supply"})
	store.PutCustomer(Customer{ID: 7, Name: "Rina", Email: "rina@example.com"})
	env := &testEnv{
		store:      store,
		dispatcher: &recordingDispatcher{},
		observer:   &recordingObserver{},
		metrics:    &countingMetrics{},
	}
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = "admin@example.com"
	}
	env.svc = NewService(ServiceDeps{
		Store:       store,
		Dispatcher:  env.dispatcher,
		Idempotency: shared.NewMemoryIdempotencyStore(),
		Observers:   []MovementObserver{env.observer},
		Metrics:     env.metrics,
		Clock:       func() time.Time { return fixedNow },
	}, cfg)
	return env
}

func lowStockAt(n int64) *int64 { return &n }

func (e *testEnv) stock(t *testing.T) int64 {
	t.Helper()
	qty, err := e.svc.GetStock(context.Background(), 1)
	require.NoError(t, err)
	return qty
}

func (e *testEnv) history(t *testing.T) []Transaction {
	t.Helper()
	txs, err := e.store.AllTransactions(context.Background())
	require.NoError(t, err)
	return txs
}

func TestSellToThresholdRaisesOneLowStockAlert(t *testing.T) {
	env := newTestEnv(t, 4, ServiceConfig{})

	res, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 2, Description: "walk-in"})
	require.NoError(t, err)
	require.True(t, res.LowStock)
	require.Equal(t, int64(2), res.Product.StockQuantity)

	alerts := env.dispatcher.byKind(NotificationLowStock)
	require.Len(t, alerts, 1)
	require.Equal(t, "admin@example.com", alerts[0].Recipient)
	require.Equal(t, int64(2), alerts[0].Quantity)
	require.Equal(t, "Stock is low for this product: Desk Lamp. Only 2 items left!", alerts[0].StatusMessage)
}

func TestSellAboveThresholdRaisesNoAlert(t *testing.T) {
	env := newTestEnv(t, 4, ServiceConfig{})

	res, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	require.False(t, res.LowStock)
	require.Equal(t, int64(3), env.stock(t))
	require.Empty(t, env.dispatcher.byKind(NotificationLowStock))
}

func TestZeroThresholdAlertsOnlyWhenSoldOut(t *testing.T) {
	env := newTestEnv(t, 3, ServiceConfig{LowStockThreshold: lowStockAt(0)})
	require.Equal(t, int64(0), env.svc.trigger.Threshold())

	res, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	require.False(t, res.LowStock)
	require.Empty(t, env.dispatcher.byKind(NotificationLowStock))

	res, err = env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	require.True(t, res.LowStock)
	require.Len(t, env.dispatcher.byKind(NotificationLowStock), 1)
}

func TestUnsetThresholdDefaultsToTwo(t *testing.T) {
	svc := NewService(ServiceDeps{Store: NewMemoryStore()}, ServiceConfig{})
	require.Equal(t, int64(DefaultLowStockThreshold), svc.trigger.Threshold())
}

func TestPurchaseIncreasesStockWithoutEvaluatingLowStock(t *testing.T) {
	env := newTestEnv(t, 0, ServiceConfig{})

	res, err := env.svc.Purchase(context.Background(), PurchaseInput{ProductID: 1, SupplierID: 1, Quantity: 1, Note: "restock"})
	require.NoError(t, err)
	require.False(t, res.LowStock)
	require.Equal(t, int64(1), env.stock(t))
	require.Empty(t, env.dispatcher.sent)

	tx := res.Transaction
	require.Equal(t, KindPurchase, tx.Kind)
	require.Equal(t, StatusCompleted, tx.Status)
	require.Equal(t, int64(1), tx.SupplierID)
	require.Equal(t, int64(1), tx.TotalProducts)
	require.NotEmpty(t, tx.Reference)
	require.Equal(t, fixedNow, tx.CreatedAt)
}

func TestTotalsUsePriceSnapshot(t *testing.T) {
	env := newTestEnv(t, 10, ServiceConfig{})
	ctx := context.Background()

	first, err := env.svc.Sell(ctx, SellInput{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	require.True(t, first.Transaction.TotalPrice.Equal(decimal.RequireFromString("21.00")))

	p, err := env.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	p.Price = decimal.NewFromInt(99)
	env.store.PutProduct(p)

	second, err := env.svc.Sell(ctx, SellInput{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	require.True(t, second.Transaction.TotalPrice.Equal(decimal.NewFromInt(99)))

	stored, err := env.svc.GetTransaction(ctx, first.Transaction.ID)
	require.NoError(t, err)
	require.True(t, stored.UnitPrice.Equal(decimal.RequireFromString("10.50")))
	require.True(t, stored.TotalPrice.Equal(stored.UnitPrice.Mul(decimal.NewFromInt(stored.Quantity))))
}

func TestSellRejectsInsufficientStockWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t, 3, ServiceConfig{})

	_, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 4})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(3), env.stock(t))
	require.Empty(t, env.history(t))
	require.Empty(t, env.dispatcher.sent)
	require.Empty(t, env.observer.recorded())
	require.Equal(t, int64(1), env.metrics.count("SALE:rejected"))
}

func TestValidationFailures(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	ctx := context.Background()

	cases := []struct {
		name string
		run  func() error
	}{
		{"zero quantity sale", func() error { _, err := env.svc.Sell(ctx, SellInput{ProductID: 1}); return err }},
		{"negative quantity purchase", func() error {
			_, err := env.svc.Purchase(ctx, PurchaseInput{ProductID: 1, SupplierID: 1, Quantity: -3})
			return err
		}},
		{"missing product", func() error { _, err := env.svc.Sell(ctx, SellInput{Quantity: 1}); return err }},
		{"missing supplier", func() error {
			_, err := env.svc.Purchase(ctx, PurchaseInput{ProductID: 1, Quantity: 1})
			return err
		}},
		{"missing customer", func() error {
			_, err := env.svc.PlaceCustomerOrder(ctx, CustomerOrderInput{ProductID: 1, Quantity: 1})
			return err
		}},
		{"return without supplier", func() error {
			_, err := env.svc.ReturnToSupplier(ctx, ReturnInput{ProductID: 1, Quantity: 1})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), shared.ErrValidation)
		})
	}
	require.Equal(t, int64(5), env.stock(t))
	require.Empty(t, env.history(t))
}

func TestUnknownReferencesReturnNotFound(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	ctx := context.Background()

	_, err := env.svc.Sell(ctx, SellInput{ProductID: 99, Quantity: 1})
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = env.svc.Sell(ctx, SellInput{ProductID: 2, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound, "deleted products are not sellable")

	_, err = env.svc.Purchase(ctx, PurchaseInput{ProductID: 1, SupplierID: 42, Quantity: 1})
	require.ErrorIs(t, err, ErrSupplierNotFound)

	_, err = env.svc.PlaceCustomerOrder(ctx, CustomerOrderInput{CustomerID: 42, ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, ErrCustomerNotFound)

	_, err = env.svc.GetTransaction(ctx, 1234)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentSellsNeverOversell(t *testing.T) {
	env := newTestEnv(t, 10, ServiceConfig{LowStockThreshold: lowStockAt(1)})
	var succeeded, rejected atomic.Int64

	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 1})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, shared.ErrInsufficientStock):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int64(10), succeeded.Load())
	require.Equal(t, int64(15), rejected.Load())
	require.Equal(t, int64(0), env.stock(t))
	require.Len(t, env.history(t), 10)
	require.Len(t, env.observer.recorded(), 10)
}

func TestConcurrentPurchasesAndSalesKeepLedgerConsistent(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := env.svc.Purchase(context.Background(), PurchaseInput{ProductID: 1, SupplierID: 1, Quantity: 2})
			return err
		})
		g.Go(func() error {
			_, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 1})
			if errors.Is(err, shared.ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	var net int64 = 5
	for _, tx := range env.history(t) {
		if tx.Kind.Decrements() {
			net -= tx.Quantity
		} else {
			net += tx.Quantity
		}
	}
	require.Equal(t, net, env.stock(t))
	require.GreaterOrEqual(t, env.stock(t), int64(0))
}

type failingInsertStore struct {
	*MemoryStore
}

func (s failingInsertStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.MemoryStore.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, failingInsertTx{tx})
	})
}

type failingInsertTx struct {
	TxRepository
}

func (failingInsertTx) InsertTransaction(context.Context, Transaction) (Transaction, error) {
	return Transaction{}, errors.New("disk full")
}

func TestRecordFailureRollsBackStock(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	svc := NewService(ServiceDeps{Store: failingInsertStore{env.store}, Dispatcher: env.dispatcher}, ServiceConfig{LowStockThreshold: lowStockAt(10)})

	_, err := svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 2})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Equal(t, "something went wrong, please try again later", shared.UserSafeMessage(err))
	require.Equal(t, int64(5), env.stock(t))
	require.Empty(t, env.history(t))
	require.Empty(t, env.dispatcher.sent)
}

func TestCustomerOrderConfirmsAndGuardsReplays(t *testing.T) {
	env := newTestEnv(t, 6, ServiceConfig{})
	ctx := context.Background()
	in := CustomerOrderInput{CustomerID: 7, ProductID: 1, Quantity: 2, IdempotencyKey: "cart-123"}

	res, err := env.svc.PlaceCustomerOrder(ctx, in)
	require.NoError(t, err)
	require.Equal(t, KindCustomerOrder, res.Transaction.Kind)
	require.Equal(t, int64(7), res.Transaction.CustomerID)
	require.False(t, res.LowStock)

	confirmations := env.dispatcher.byKind(NotificationOrderPlaced)
	require.Len(t, confirmations, 1)
	require.Equal(t, "rina@example.com", confirmations[0].Recipient)
	require.Equal(t, "Rina", confirmations[0].RecipientName)
	require.Equal(t, OrderPlacedMessage, confirmations[0].StatusMessage)
	require.Equal(t, res.Transaction.Reference, confirmations[0].TransactionRef)

	_, err = env.svc.PlaceCustomerOrder(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(4), env.stock(t))
	require.Len(t, env.history(t), 1)
}

func TestCustomerOrderReleasesKeyWhenRejected(t *testing.T) {
	env := newTestEnv(t, 1, ServiceConfig{})
	ctx := context.Background()
	in := CustomerOrderInput{CustomerID: 7, ProductID: 1, Quantity: 2, IdempotencyKey: "cart-9"}

	_, err := env.svc.PlaceCustomerOrder(ctx, in)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, env.dispatcher.sent)

	_, err = env.svc.Purchase(ctx, PurchaseInput{ProductID: 1, SupplierID: 1, Quantity: 5})
	require.NoError(t, err)

	res, err := env.svc.PlaceCustomerOrder(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(4), res.Product.StockQuantity)
}

func TestReturnToSupplierDecrementsAndEvaluates(t *testing.T) {
	env := newTestEnv(t, 3, ServiceConfig{})
	ctx := context.Background()

	_, err := env.svc.ReturnToSupplier(ctx, ReturnInput{ProductID: 1, SupplierID: 1, Quantity: 4})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	res, err := env.svc.ReturnToSupplier(ctx, ReturnInput{ProductID: 1, SupplierID: 1, Quantity: 3, Note: "damaged"})
	require.NoError(t, err)
	require.Equal(t, KindReturnToSupplier, res.Transaction.Kind)
	require.Equal(t, int64(0), res.Product.StockQuantity)
	require.True(t, res.LowStock)
	require.Len(t, env.dispatcher.byKind(NotificationLowStock), 1)
}

func TestFailedAttemptsRecordedWhenEnabled(t *testing.T) {
	env := newTestEnv(t, 1, ServiceConfig{RecordFailedAttempts: true})

	_, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 3, Note: "bulk"})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(1), env.stock(t))

	txs := env.history(t)
	require.Len(t, txs, 1)
	require.Equal(t, StatusFailed, txs[0].Status)
	require.Contains(t, txs[0].Note, "bulk; insufficient stock")
}

func TestObserverFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	env.observer.err = errors.New("cache unavailable")

	res, err := env.svc.Sell(context.Background(), SellInput{ProductID: 1, Quantity: 1, ActorID: 3})
	require.NoError(t, err)
	events := env.observer.recorded()
	require.Len(t, events, 1)
	require.Equal(t, res.Transaction.Reference, events[0].Transaction.Reference)
	require.Equal(t, int64(3), events[0].ActorID)
	require.Equal(t, int64(1), env.metrics.count("SALE:completed"))
}

func TestListTransactionsPagesNewestFirst(t *testing.T) {
	env := newTestEnv(t, 50, ServiceConfig{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := env.svc.Sell(ctx, SellInput{ProductID: 1, Quantity: 1, Description: "counter sale"})
		require.NoError(t, err)
	}
	_, err := env.svc.Purchase(ctx, PurchaseInput{ProductID: 1, SupplierID: 1, Quantity: 3, Description: "pallet"})
	require.NoError(t, err)

	page, err := env.svc.ListTransactions(ctx, TransactionFilter{Page: 1, Size: 4})
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	require.Equal(t, 6, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Equal(t, KindPurchase, page.Items[0].Kind)

	page, err = env.svc.ListTransactions(ctx, TransactionFilter{Page: 2, Size: 4})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	page, err = env.svc.ListTransactions(ctx, TransactionFilter{Search: "PALLET"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 20, page.Pagination.PerPage)
}

func TestTransactionsByMonth(t *testing.T) {
	env := newTestEnv(t, 10, ServiceConfig{})
	ctx := context.Background()
	_, err := env.svc.Sell(ctx, SellInput{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	txs, err := env.svc.TransactionsByMonth(ctx, 3, 2024)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	txs, err = env.svc.TransactionsByMonth(ctx, 4, 2024)
	require.NoError(t, err)
	require.Empty(t, txs)

	_, err = env.svc.TransactionsByMonth(ctx, 13, 2024)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSweepLowStock(t *testing.T) {
	env := newTestEnv(t, 1, ServiceConfig{})
	env.store.PutProduct(Product{ID: 3, Name: "Pens", Price: decimal.NewFromInt(1), StockQuantity: 40})

	raised, err := env.svc.SweepLowStock(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, raised)
	alerts := env.dispatcher.byKind(NotificationLowStock)
	require.Len(t, alerts, 1)
	require.Equal(t, int64(1), alerts[0].ProductID)
}

func TestSearchProductsMatchesNameAndDescription(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	env.store.PutProduct(Product{ID: 3, Name: "Bulb", Description: "Spare for the desk lamp", Price: decimal.NewFromInt(2)})
	ctx := context.Background()

	found, err := env.svc.SearchProducts(ctx, "  DESK ")
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, int64(1), found[0].ID)
	require.Equal(t, int64(3), found[1].ID)

	found, err = env.svc.SearchProducts(ctx, "chair")
	require.NoError(t, err)
	require.Empty(t, found)

	all, err := env.svc.SearchProducts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCancelledContextSurfacesAsRetryable(t *testing.T) {
	env := newTestEnv(t, 5, ServiceConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Sell(ctx, SellInput{ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(5), env.stock(t))
	require.Empty(t, env.history(t))
	require.Equal(t, int64(1), env.metrics.count("SALE:failed"))
}
