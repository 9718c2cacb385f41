package app

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// SeedDemo loads a small catalogue into an in-memory store so the memory
// driver is usable without a database.
func SeedDemo(store *inventory.MemoryStore) {
	store.PutProduct(inventory.Product{ID: 1, Name: "Wireless Mouse", SKU: "ACC-001", Price: decimal.RequireFromString("12.99"), StockQuantity: 40, Description: "2.4GHz optical mouse"})
	store.PutProduct(inventory.Product{ID: 2, Name: "Mechanical Keyboard", SKU: "ACC-002", Price: decimal.RequireFromString("79.00"), StockQuantity: 12, Description: "Brown switches, US layout"})
	store.PutProduct(inventory.Product{ID: 3, Name: "USB-C Hub", SKU: "ACC-003", Price: decimal.RequireFromString("24.50"), StockQuantity: 3, Description: "7-in-1 hub"})
	store.PutSupplier(inventory.Supplier{ID: 1, Name: "Nusantara Components", Email: "sales@nusantara.example"})
	store.PutCustomer(inventory.Customer{ID: 1, Name: "Ayu Lestari", Email: "ayu@example.com"})
}
