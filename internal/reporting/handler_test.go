package reporting

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := inventory.NewMemoryStore()
	addTx(t, store, time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC), 3, "2.5")
	svc := NewService(store, nil, time.UTC, nil)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes)
	return r
}

func TestDailySeriesEndpoint(t *testing.T) {
	h := newTestRouter(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/reports/daily?month=3&year=2024&metric=amount", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Month   int         `json:"month"`
		Metric  Metric      `json:"metric"`
		Buckets []DayBucket `json:"buckets"`
		Values  []string    `json:"values"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 3, body.Month)
	require.Equal(t, MetricAmount, body.Metric)
	require.Len(t, body.Buckets, 31)
	require.Len(t, body.Values, 31)
	require.Equal(t, "7.5", body.Values[1])
	require.Equal(t, "0", body.Values[0])
}

func TestDailySeriesEndpointValidation(t *testing.T) {
	h := newTestRouter(t)
	for _, path := range []string{
		"/api/reports/daily?month=3&year=2024&metric=profit",
		"/api/reports/daily?month=13&year=2024",
		"/api/reports/daily?year=2024",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestExportEndpoints(t *testing.T) {
	h := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exports/transactions.csv", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "transactions.csv")
	require.Equal(t, 2, strings.Count(rr.Body.String(), "\n"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exports/products.csv", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Product ID,Name,SKU,Price,Stock Quantity,Description\n", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exports/transactions.xlsx", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.HasPrefix(rr.Body.String(), "PK"))
}
