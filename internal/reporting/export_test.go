package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

func TestExportTransactionsCSVEmptyIsHeaderOnly(t *testing.T) {
	svc := NewService(inventory.NewMemoryStore(), nil, nil, nil)
	var buf bytes.Buffer

	require.NoError(t, svc.ExportTransactionsCSV(context.Background(), &buf))
	require.Equal(t, "Transaction ID,Type,Status,Product ID,Quantity,Unit Price,Total Price,Total Products,Supplier ID,Customer ID,Description,Note,Created At\n", buf.String())
}

func TestExportProductsCSVQuotesText(t *testing.T) {
	store := inventory.NewMemoryStore()
	store.PutProduct(inventory.Product{ID: 1, Name: `Chair, "Oak"`, SKU: "CH-1", Price: decimal.RequireFromString("49.9"), StockQuantity: 3, Description: "line one\nline two"})
	store.PutProduct(inventory.Product{ID: 2, Name: "Gone", Deleted: true})
	svc := NewService(store, nil, nil, nil)
	var buf bytes.Buffer

	require.NoError(t, svc.ExportProductsCSV(context.Background(), &buf))
	lines := strings.SplitN(buf.String(), "\n", 2)
	require.Equal(t, "Product ID,Name,SKU,Price,Stock Quantity,Description", lines[0])
	require.True(t, strings.HasPrefix(lines[1], `1,"Chair, ""Oak""","CH-1",49.90,3,"line one`))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, `Chair, "Oak"`, records[1][1])
	require.Equal(t, "line one\nline two", records[1][5])
}

func TestExportTransactionsCSVRows(t *testing.T) {
	store := inventory.NewMemoryStore()
	addTx(t, store, time.Date(2024, time.May, 2, 8, 30, 0, 0, time.UTC), 2, "1.5")
	svc := NewService(store, nil, nil, nil)
	var buf bytes.Buffer

	require.NoError(t, svc.ExportTransactionsCSV(context.Background(), &buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, `1,"SALE","COMPLETED",1,2,1.50,3.00,2,,,"","","2024-05-02T08:30:00Z"`, lines[1])
}

func TestExportTransactionsXLSX(t *testing.T) {
	store := inventory.NewMemoryStore()
	addTx(t, store, time.Date(2024, time.May, 2, 8, 30, 0, 0, time.UTC), 4, "2")
	svc := NewService(store, nil, nil, nil)
	var buf bytes.Buffer

	require.NoError(t, svc.ExportTransactionsXLSX(context.Background(), &buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{transactionSheet}, f.GetSheetList())
	rows, err := f.GetRows(transactionSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, transactionHeader, rows[0])
	require.Equal(t, "SALE", rows[1][1])
	require.Equal(t, "8", rows[1][6])
}
