package reporting

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

var (
	productHeader = []string{"Product ID", "Name", "SKU", "Price", "Stock Quantity", "Description"}

	transactionHeader = []string{
		"Transaction ID", "Type", "Status", "Product ID", "Quantity", "Unit Price", "Total Price",
		"Total Products", "Supplier ID", "Customer ID", "Description", "Note", "Created At",
	}
)

// cell is one CSV field. Text cells are always quoted, numbers never are.
type cell struct {
	value string
	text  bool
}

func text(v string) cell   { return cell{value: v, text: true} }
func number(v string) cell { return cell{value: v} }
func integer(v int64) cell { return cell{value: strconv.FormatInt(v, 10)} }

// optionalID renders zero references as an empty field.
func optionalID(v int64) cell {
	if v == 0 {
		return cell{}
	}
	return integer(v)
}

// csvWriter emits comma separated rows with "\n" line ends.
type csvWriter struct {
	w *bufio.Writer
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: bufio.NewWriter(w)}
}

func (c *csvWriter) header(cols []string) error {
	row := make([]cell, len(cols))
	for i, col := range cols {
		row[i] = number(col)
	}
	return c.row(row)
}

func (c *csvWriter) row(cells []cell) error {
	for i, f := range cells {
		if i > 0 {
			if err := c.w.WriteByte(','); err != nil {
				return err
			}
		}
		v := f.value
		if f.text {
			v = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		if _, err := c.w.WriteString(v); err != nil {
			return err
		}
	}
	return c.w.WriteByte('\n')
}

func (c *csvWriter) flush() error {
	return c.w.Flush()
}

func productRow(p inventory.Product) []cell {
	return []cell{
		integer(p.ID),
		text(p.Name),
		text(p.SKU),
		number(p.Price.StringFixed(2)),
		integer(p.StockQuantity),
		text(p.Description),
	}
}

func transactionRow(tx inventory.Transaction, loc *time.Location) []cell {
	return []cell{
		integer(tx.ID),
		text(string(tx.Kind)),
		text(string(tx.Status)),
		integer(tx.ProductID),
		integer(tx.Quantity),
		number(tx.UnitPrice.StringFixed(2)),
		number(tx.TotalPrice.StringFixed(2)),
		integer(tx.TotalProducts),
		optionalID(tx.SupplierID),
		optionalID(tx.CustomerID),
		text(tx.Description),
		text(tx.Note),
		text(tx.CreatedAt.In(loc).Format(time.RFC3339)),
	}
}

// ExportProductsCSV writes the current catalog as CSV.
func (s *Service) ExportProductsCSV(ctx context.Context, w io.Writer) error {
	products, err := s.source.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("%w: load products: %w", shared.ErrPersistence, err)
	}
	out := newCSVWriter(w)
	if err := out.header(productHeader); err != nil {
		return err
	}
	for _, p := range products {
		if err := out.row(productRow(p)); err != nil {
			return err
		}
	}
	return out.flush()
}

// ExportTransactionsCSV writes the full transaction history as CSV.
func (s *Service) ExportTransactionsCSV(ctx context.Context, w io.Writer) error {
	txs, err := s.source.AllTransactions(ctx)
	if err != nil {
		return fmt.Errorf("%w: load transactions: %w", shared.ErrPersistence, err)
	}
	out := newCSVWriter(w)
	if err := out.header(transactionHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := out.row(transactionRow(tx, s.loc)); err != nil {
			return err
		}
	}
	return out.flush()
}

const transactionSheet = "Transactions"

// ExportTransactionsXLSX writes the full transaction history as a single-sheet workbook.
func (s *Service) ExportTransactionsXLSX(ctx context.Context, w io.Writer) error {
	txs, err := s.source.AllTransactions(ctx)
	if err != nil {
		return fmt.Errorf("%w: load transactions: %w", shared.ErrPersistence, err)
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), transactionSheet); err != nil {
		return err
	}

	header := make([]any, len(transactionHeader))
	for i, h := range transactionHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(transactionSheet, "A1", &header); err != nil {
		return err
	}
	for i, tx := range txs {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		unit, _ := tx.UnitPrice.Float64()
		total, _ := tx.TotalPrice.Float64()
		row := []any{
			tx.ID, string(tx.Kind), string(tx.Status), tx.ProductID, tx.Quantity, unit, total,
			tx.TotalProducts, nullableID(tx.SupplierID), nullableID(tx.CustomerID),
			tx.Description, tx.Note, tx.CreatedAt.In(s.loc).Format(time.RFC3339),
		}
		if err := f.SetSheetRow(transactionSheet, cellName, &row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(transactionSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
