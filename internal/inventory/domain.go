package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TransactionKind enumerates supported stock movements.
type TransactionKind string

const (
	// KindPurchase represents stock received from a supplier.
	KindPurchase TransactionKind = "PURCHASE"
	// KindSale represents stock sold by staff.
	KindSale TransactionKind = "SALE"
	// KindCustomerOrder represents stock taken by a storefront order.
	KindCustomerOrder TransactionKind = "CUSTOMER_ORDER"
	// KindReturnToSupplier represents stock sent back to a supplier.
	KindReturnToSupplier TransactionKind = "RETURN_TO_SUPPLIER"
)

// Decrements reports whether the movement takes stock out.
func (k TransactionKind) Decrements() bool {
	return k == KindSale || k == KindCustomerOrder || k == KindReturnToSupplier
}

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindPurchase, KindSale, KindCustomerOrder, KindReturnToSupplier:
		return true
	}
	return false
}

// TransactionStatus is the outcome stored on a transaction.
type TransactionStatus string

const (
	// StatusCompleted marks a movement that changed stock.
	StatusCompleted TransactionStatus = "COMPLETED"
	// StatusFailed marks an attempt kept for audit only.
	StatusFailed TransactionStatus = "FAILED"
)

// Product is the catalog entry whose stock the ledger owns.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int64           `json:"stock_quantity"`
	CategoryID    int64           `json:"category_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Deleted       bool            `json:"-"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transaction is the immutable record of one stock-affecting event.
type Transaction struct {
	ID            int64             `json:"id"`
	Reference     string            `json:"reference"`
	ProductID     int64             `json:"product_id"`
	Kind          TransactionKind   `json:"transaction_type"`
	Quantity      int64             `json:"quantity"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	TotalProducts int64             `json:"total_products"`
	Status        TransactionStatus `json:"status"`
	SupplierID    int64             `json:"supplier_id,omitempty"`
	CustomerID    int64             `json:"customer_id,omitempty"`
	Description   string            `json:"description,omitempty"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Supplier is a reference entity owned by catalog management.
type Supplier struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Customer is a storefront identity. Email receives order confirmations.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PurchaseInput describes a stock-in from a supplier.
type PurchaseInput struct {
	ProductID   int64
	SupplierID  int64
	Quantity    int64
	Description string
	Note        string
	ActorID     int64
}

// SellInput describes a staff sale.
type SellInput struct {
	ProductID   int64
	Quantity    int64
	Description string
	Note        string
	ActorID     int64
}

// CustomerOrderInput describes a storefront order for a single product.
type CustomerOrderInput struct {
	CustomerID     int64
	ProductID      int64
	Quantity       int64
	IdempotencyKey string
}

// ReturnInput describes stock sent back to a supplier.
type ReturnInput struct {
	ProductID   int64
	SupplierID  int64
	Quantity    int64
	Description string
	Note        string
	ActorID     int64
}

// FulfillmentResult is returned by every fulfillment operation.
type FulfillmentResult struct {
	Transaction Transaction `json:"transaction"`
	Product     Product     `json:"product"`
	LowStock    bool        `json:"low_stock"`
}

// TransactionFilter pages and searches the transaction history.
type TransactionFilter struct {
	Page   int
	Size   int
	Search string
}

// TransactionPage is one page of history.
type TransactionPage struct {
	Items      []Transaction     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	// ErrInvalidQuantity indicates a quantity below one.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be at least 1: %w", shared.ErrValidation)
	// ErrProductRequired indicates a missing product reference.
	ErrProductRequired = fmt.Errorf("inventory: product is required: %w", shared.ErrValidation)
	// ErrSupplierRequired indicates a missing supplier reference.
	ErrSupplierRequired = fmt.Errorf("inventory: supplier is required: %w", shared.ErrValidation)
	// ErrCustomerRequired indicates a missing customer reference.
	ErrCustomerRequired = fmt.Errorf("inventory: customer is required: %w", shared.ErrValidation)
	// ErrInvalidPeriod indicates an out of range month or year.
	ErrInvalidPeriod = fmt.Errorf("inventory: month must be 1-12 and year positive: %w", shared.ErrValidation)

	// ErrProductNotFound indicates an unknown or deleted product.
	ErrProductNotFound = fmt.Errorf("inventory: product %w", shared.ErrNotFound)
	// ErrSupplierNotFound indicates an unknown supplier.
	ErrSupplierNotFound = fmt.Errorf("inventory: supplier %w", shared.ErrNotFound)
	// ErrCustomerNotFound indicates an unknown customer.
	ErrCustomerNotFound = fmt.Errorf("inventory: customer %w", shared.ErrNotFound)
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = fmt.Errorf("inventory: transaction %w", shared.ErrNotFound)

	// ErrInsufficientStock is returned when a decrement would drive stock negative.
	ErrInsufficientStock = shared.ErrInsufficientStock
)

func insufficientStock(productID, requested, available int64) error {
	return fmt.Errorf("%w: product %d requested %d, available %d", ErrInsufficientStock, productID, requested, available)
}
