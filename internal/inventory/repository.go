package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewRepository constructs Repository. Units that hit a serialization failure
// or deadlock are retried up to maxRetries times.
func NewRepository(pool *pgxpool.Pool, maxRetries int) *Repository {
	return &Repository{pool: pool, maxRetries: maxRetries}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction. Row locks
// taken by GetProductForUpdate serialise writers per product.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	opts := db.TxOptions{IsoLevel: pgx.ReadCommitted, MaxRetries: r.maxRetries}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const productColumns = `id, name, sku, price::text, stock_quantity, COALESCE(category_id, 0), COALESCE(description, ''), COALESCE(image_url, ''), is_deleted, updated_at`

const transactionColumns = `id, reference::text, product_id, transaction_type, quantity, unit_price::text, total_price::text, total_products, status,
	COALESCE(supplier_id, 0), COALESCE(customer_id, 0), COALESCE(description, ''), COALESCE(note, ''), created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &price, &p.StockQuantity, &p.CategoryID, &p.Description, &p.ImageURL, &p.Deleted, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("inventory: parse price: %w", err)
	}
	p.Price = d
	return p, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                 Transaction
		kind, status      string
		unitPrice, totals string
	)
	if err := row.Scan(&t.ID, &t.Reference, &t.ProductID, &kind, &t.Quantity, &unitPrice, &totals, &t.TotalProducts, &status,
		&t.SupplierID, &t.CustomerID, &t.Description, &t.Note, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	t.Kind = TransactionKind(kind)
	t.Status = TransactionStatus(status)
	var err error
	if t.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return Transaction{}, fmt.Errorf("inventory: parse unit price: %w", err)
	}
	if t.TotalPrice, err = decimal.NewFromString(totals); err != nil {
		return Transaction{}, fmt.Errorf("inventory: parse total price: %w", err)
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetProduct returns a product including soft-deleted ones.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListProducts returns non-deleted products ordered by id.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE NOT is_deleted ORDER BY id`)
}

// SearchProducts matches term against name and description, ignoring case.
func (r *Repository) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products
		WHERE NOT is_deleted AND (name ILIKE '%' || $1 || '%' OR COALESCE(description, '') ILIKE '%' || $1 || '%')
		ORDER BY id`, term)
}

func (r *Repository) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSupplier returns a supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(email, ''), COALESCE(phone, '') FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Email, &s.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

// GetCustomer returns a customer.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(email, '') FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// GetTransaction returns a transaction by id.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

const transactionSearch = `($1::text = '' OR description ILIKE '%' || $1 || '%' OR note ILIKE '%' || $1 || '%'
	OR transaction_type ILIKE '%' || $1 || '%' OR status ILIKE '%' || $1 || '%')`

// ListTransactions returns one page of history, newest first, with the total match count.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_transactions WHERE `+transactionSearch, filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.Size
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE `+transactionSearch+`
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, filter.Search, filter.Size, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// TransactionsBetween returns transactions created in [from, to), oldest first.
func (r *Repository) TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions
		WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// AllTransactions returns the full history ordered by id.
func (r *Repository) AllTransactions(ctx context.Context) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (t *txRepo) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (t *txRepo) UpdateProductStock(ctx context.Context, id int64, qty int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepo) InsertTransaction(ctx context.Context, entry Transaction) (Transaction, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_transactions
		(reference, product_id, transaction_type, quantity, unit_price, total_price, total_products, status,
		 supplier_id, customer_id, description, note, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, NULLIF($9::bigint, 0), NULLIF($10::bigint, 0), NULLIF($11::text, ''), NULLIF($12::text, ''), $13)
		RETURNING id`,
		entry.Reference, entry.ProductID, string(entry.Kind), entry.Quantity, entry.UnitPrice.String(), entry.TotalPrice.String(),
		entry.TotalProducts, string(entry.Status), entry.SupplierID, entry.CustomerID, entry.Description, entry.Note, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return Transaction{}, err
	}
	return entry, nil
}
