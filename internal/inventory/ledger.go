package inventory

import "context"

// Ledger owns the authoritative stock quantity per product.
type Ledger struct {
	store Store
}

// NewLedger builds a Ledger reading from store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetStock returns the current stock level of a product.
func (l *Ledger) GetStock(ctx context.Context, productID int64) (int64, error) {
	if productID <= 0 {
		return 0, ErrProductRequired
	}
	product, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if product.Deleted {
		return 0, ErrProductNotFound
	}
	return product.StockQuantity, nil
}

// IncreaseStock adds qty to the product locked by tx and returns the product
// with its new stock level.
func (l *Ledger) IncreaseStock(ctx context.Context, tx TxRepository, productID, qty int64) (Product, error) {
	if qty < 1 {
		return Product{}, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	product.StockQuantity += qty
	if err := tx.UpdateProductStock(ctx, productID, product.StockQuantity); err != nil {
		return Product{}, err
	}
	return product, nil
}

// DecreaseStock removes qty from the product locked by tx. It is the
// authoritative insufficient-stock gate.
func (l *Ledger) DecreaseStock(ctx context.Context, tx TxRepository, productID, qty int64) (Product, error) {
	if qty < 1 {
		return Product{}, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if qty > product.StockQuantity {
		return Product{}, insufficientStock(productID, qty, product.StockQuantity)
	}
	product.StockQuantity -= qty
	if err := tx.UpdateProductStock(ctx, productID, product.StockQuantity); err != nil {
		return Product{}, err
	}
	return product, nil
}
