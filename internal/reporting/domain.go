// Package reporting aggregates inventory history into dashboard series and
// flat exports.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Metric selects which bucket field a caller plots.
type Metric string

const (
	// MetricCount plots the number of transactions per day.
	MetricCount Metric = "count"
	// MetricQuantity plots the products moved per day.
	MetricQuantity Metric = "quantity"
	// MetricAmount plots the monetary total per day.
	MetricAmount Metric = "amount"
)

// ParseMetric normalises a metric name. Empty selects MetricCount.
func ParseMetric(raw string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return MetricCount, nil
	case MetricCount, MetricQuantity, MetricAmount:
		return m, nil
	default:
		return "", fmt.Errorf("reporting: unknown metric %q: %w", raw, shared.ErrValidation)
	}
}

// DayBucket aggregates one calendar day.
type DayBucket struct {
	Day      int             `json:"day"`
	Count    int64           `json:"count"`
	Quantity int64           `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// Series is the daily breakdown of one month.
type Series struct {
	Month   int         `json:"month"`
	Year    int         `json:"year"`
	Metric  Metric      `json:"metric"`
	Buckets []DayBucket `json:"buckets"`
	Totals  DayBucket   `json:"totals"`
}

// Values returns the selected metric per day, day 1 first.
func (s Series) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.Buckets))
	for i, b := range s.Buckets {
		switch s.Metric {
		case MetricQuantity:
			out[i] = decimal.NewFromInt(b.Quantity)
		case MetricAmount:
			out[i] = b.Amount
		default:
			out[i] = decimal.NewFromInt(b.Count)
		}
	}
	return out
}

// Source is the read-only view of inventory used for reports.
type Source interface {
	ListProducts(ctx context.Context) ([]inventory.Product, error)
	AllTransactions(ctx context.Context) ([]inventory.Transaction, error)
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]inventory.Transaction, error)
}

// CacheMetrics receives cache hit/miss observations.
type CacheMetrics interface {
	ObserveReportCache(hit bool)
}

// BuildSeries buckets txs into the days of month/year in loc. Transactions
// outside the month are ignored.
func BuildSeries(txs []inventory.Transaction, month, year int, metric Metric, loc *time.Location) Series {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	days := first.AddDate(0, 1, -1).Day()
	buckets := make([]DayBucket, days)
	for i := range buckets {
		buckets[i] = DayBucket{Day: i + 1, Amount: decimal.Zero}
	}
	totals := DayBucket{Amount: decimal.Zero}
	for _, tx := range txs {
		at := tx.CreatedAt.In(loc)
		if at.Year() != year || int(at.Month()) != month {
			continue
		}
		b := &buckets[at.Day()-1]
		b.Count++
		b.Quantity += tx.TotalProducts
		b.Amount = b.Amount.Add(tx.TotalPrice)
		totals.Count++
		totals.Quantity += tx.TotalProducts
		totals.Amount = totals.Amount.Add(tx.TotalPrice)
	}
	return Series{Month: month, Year: year, Metric: metric, Buckets: buckets, Totals: totals}
}
