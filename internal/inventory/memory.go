package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is a process-local Store. Each product has its own lock, so
// units on different products run in parallel.
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[int64]Product
	suppliers    map[int64]Supplier
	customers    map[int64]Customer
	transactions []Transaction

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	nextTxID atomic.Int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[int64]Product),
		suppliers: make(map[int64]Supplier),
		customers: make(map[int64]Customer),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// PutProduct inserts or replaces a product.
func (s *MemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
}

// PutSupplier inserts or replaces a supplier.
func (s *MemoryStore) PutSupplier(sup Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = sup
}

// PutCustomer inserts or replaces a customer.
func (s *MemoryStore) PutCustomer(c Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// WithTx runs fn with staged writes that are applied only when fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{store: s, stock: make(map[int64]int64)}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, qty := range tx.stock {
		p := s.products[id]
		p.StockQuantity = qty
		p.UpdatedAt = now
		s.products[id] = p
	}
	s.transactions = append(s.transactions, tx.inserted...)
}

// productLock returns the mutex guarding a known product. Products are only
// ever soft-deleted, so an id that exists once keeps its lock for good.
func (s *MemoryStore) productLock(id int64) (*sync.Mutex, bool) {
	s.mu.RLock()
	_, known := s.products[id]
	s.mu.RUnlock()
	if !known {
		return nil, false
	}
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l, true
}

// GetProduct returns a product including deleted ones.
func (s *MemoryStore) GetProduct(_ context.Context, id int64) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// ListProducts returns non-deleted products ordered by id.
func (s *MemoryStore) ListProducts(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Deleted {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchProducts returns non-deleted products whose name or description contains term.
func (s *MemoryStore) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	out := products[:0]
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Description), term) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetSupplier returns a supplier.
func (s *MemoryStore) GetSupplier(_ context.Context, id int64) (Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	return sup, nil
}

// GetCustomer returns a customer.
func (s *MemoryStore) GetCustomer(_ context.Context, id int64) (Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

// GetTransaction returns a transaction by id.
func (s *MemoryStore) GetTransaction(_ context.Context, id int64) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if tx.ID == id {
			return tx, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

// ListTransactions filters, sorts newest first and pages the history.
func (s *MemoryStore) ListTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, int, error) {
	s.mu.RLock()
	matched := make([]Transaction, 0, len(s.transactions))
	search := strings.ToLower(filter.Search)
	for _, tx := range s.transactions {
		if search == "" || matchesSearch(tx, search) {
			matched = append(matched, tx)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	start := (filter.Page - 1) * filter.Size
	if start < 0 {
		start = 0
	}
	if start >= total {
		return []Transaction{}, total, nil
	}
	end := start + filter.Size
	if filter.Size <= 0 || end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// TransactionsBetween returns transactions created in [from, to), oldest first.
func (s *MemoryStore) TransactionsBetween(_ context.Context, from, to time.Time) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, tx := range s.transactions {
		if !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AllTransactions returns the full history in insertion order.
func (s *MemoryStore) AllTransactions(_ context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out, nil
}

func matchesSearch(tx Transaction, search string) bool {
	for _, field := range []string{tx.Description, tx.Note, string(tx.Kind), string(tx.Status)} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func sortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

type memoryTx struct {
	store    *MemoryStore
	held     []*sync.Mutex
	heldIDs  map[int64]struct{}
	stock    map[int64]int64
	inserted []Transaction
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	if tx.heldIDs == nil {
		tx.heldIDs = make(map[int64]struct{})
	}
	if _, ok := tx.heldIDs[id]; !ok {
		l, ok := tx.store.productLock(id)
		if !ok {
			return Product{}, ErrProductNotFound
		}
		l.Lock()
		tx.held = append(tx.held, l)
		tx.heldIDs[id] = struct{}{}
	}
	p, err := tx.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if p.Deleted {
		return Product{}, ErrProductNotFound
	}
	if qty, ok := tx.stock[id]; ok {
		p.StockQuantity = qty
	}
	return p, nil
}

func (tx *memoryTx) UpdateProductStock(_ context.Context, id int64, qty int64) error {
	if _, ok := tx.heldIDs[id]; !ok {
		return fmt.Errorf("inventory: product %d updated without lock", id)
	}
	if qty < 0 {
		return errors.New("inventory: stock quantity must not be negative")
	}
	tx.stock[id] = qty
	return nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, entry Transaction) (Transaction, error) {
	entry.ID = tx.store.nextTxID.Add(1)
	tx.inserted = append(tx.inserted, entry)
	return entry, nil
}

func (tx *memoryTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held = nil
}
