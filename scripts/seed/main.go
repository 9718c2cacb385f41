package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/migrations"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	if err := migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	fmt.Println("→ Seeding catalogue...")
	if err := seedCatalogue(ctx, pool); err != nil {
		log.Fatalf("seed catalogue: %v", err)
	}
	fmt.Println("→ Seeding suppliers and customers...")
	if err := seedCounterparties(ctx, pool); err != nil {
		log.Fatalf("seed counterparties: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := migrations.Ordered()
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := migrations.Files.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func seedCatalogue(ctx context.Context, pool *pgxpool.Pool) error {
	categories := []string{"Accessories", "Networking"}
	for _, name := range categories {
		if _, err := pool.Exec(ctx, `INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return err
		}
	}

	products := []struct {
		sku, name, category, price, description string
		stock                                   int64
	}{
		{"ACC-001", "Wireless Mouse", "Accessories", "12.99", "2.4GHz optical mouse", 40},
		{"ACC-002", "Mechanical Keyboard", "Accessories", "79.00", "Brown switches, US layout", 12},
		{"ACC-003", "USB-C Hub", "Accessories", "24.50", "7-in-1 hub", 3},
		{"NET-001", "Gigabit Switch 8-port", "Networking", "45.00", "Unmanaged desktop switch", 6},
		{"NET-002", "Cat6 Cable 2m", "Networking", "3.25", "Snagless patch cable", 150},
	}
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (sku, name, category_id, price, stock_quantity, description)
			VALUES ($1, $2, (SELECT id FROM categories WHERE name = $3), $4::numeric, $5, $6)
			ON CONFLICT (sku) DO NOTHING`, p.sku, p.name, p.category, p.price, p.stock, p.description)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedCounterparties(ctx context.Context, pool *pgxpool.Pool) error {
	suppliers := []struct{ name, email, phone string }{
		{"Nusantara Components", "sales@nusantara.example", "+62-21-555-0101"},
		{"Borneo Networks", "orders@borneo.example", "+62-541-555-0199"},
	}
	for _, s := range suppliers {
		_, err := pool.Exec(ctx, `
			INSERT INTO suppliers (name, email, phone)
			SELECT $1::text, $2::text, $3::text
			WHERE NOT EXISTS (SELECT 1 FROM suppliers WHERE name = $1::text)`, s.name, s.email, s.phone)
		if err != nil {
			return err
		}
	}

	customers := []struct{ name, email string }{
		{"Ayu Lestari", "ayu@example.com"},
		{"Budi Santoso", "budi@example.com"},
	}
	for _, c := range customers {
		if _, err := pool.Exec(ctx, `INSERT INTO customers (name, email) VALUES ($1, $2) ON CONFLICT (email) DO NOTHING`, c.name, c.email); err != nil {
			return err
		}
	}
	return nil
}
