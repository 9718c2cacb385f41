package inventory

import (
	"context"
	"time"
)

// Store is the persistence port used by the inventory core.
type Store interface {
	// WithTx runs fn as one atomic unit. Products read through
	// TxRepository.GetProductForUpdate stay exclusively held until the unit
	// commits or rolls back.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	// SearchProducts returns non-deleted products whose name or description
	// contains term, ignoring case.
	SearchProducts(ctx context.Context, term string) ([]Product, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error)
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error)
	AllTransactions(ctx context.Context) ([]Transaction, error)
}

// TxRepository exposes the writes allowed inside a unit.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProductStock(ctx context.Context, id int64, qty int64) error
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Repository)(nil)
)
