package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("NOTIFY_DRIVER", "log")
	t.Setenv("REPORT_TIMEZONE", "Asia/Jakarta")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, int64(2), cfg.LowStockThreshold)
	require.Equal(t, 3, cfg.PGTxMaxRetries)
	require.False(t, cfg.RecordFailedAttempts)

	loc, err := cfg.ReportLocation()
	require.NoError(t, err)
	require.Equal(t, "Asia/Jakarta", loc.String())
}

func TestConfigValidate(t *testing.T) {
	base := Config{StoreDriver: StoreDriverMemory, NotifyDriver: NotifyDriverLog}
	require.NoError(t, base.Validate())

	bad := base
	bad.StoreDriver = "sqlite"
	require.ErrorContains(t, bad.Validate(), "STORE_DRIVER")

	bad = base
	bad.NotifyDriver = "pigeon"
	require.ErrorContains(t, bad.Validate(), "NOTIFY_DRIVER")

	bad = base
	bad.LowStockThreshold = -1
	require.Error(t, bad.Validate())

	bad = base
	bad.ReportTimezone = "Mars/Olympus"
	require.ErrorContains(t, bad.Validate(), "REPORT_TIMEZONE")
}

func newTestRouter(t *testing.T, health map[string]HealthChecker) http.Handler {
	t.Helper()
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := inventory.NewMemoryStore()
	SeedDemo(store)
	metrics := observability.NewMetrics()
	svc := inventory.NewService(inventory.ServiceDeps{
		Store:       store,
		Dispatcher:  inventory.NewDispatcher(inventory.NewLogNotifier(logger), logger, inventory.DispatcherConfig{}, metrics),
		Idempotency: shared.NewMemoryIdempotencyStore(),
		Metrics:     metrics,
		Logger:      logger,
	}, inventory.ServiceConfig{AdminEmail: "admin@example.com"})

	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           &Config{AppEnv: "test"},
		InventoryHandler: inventory.NewHandler(logger, svc),
		JobHandler:       jobs.NewHandler(nil, logger),
		Metrics:          metrics,
		Health:           health,
	})
}

func TestRouterServesAPI(t *testing.T) {
	h := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/sales", strings.NewReader(`{"product_id":3,"quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/products/3/stock", nil))
	require.JSONEq(t, `{"product_id":3,"stock_quantity":2}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `odyssey_inventory_movements_total{kind="SALE",outcome="completed"} 1`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestHealthzReportsDependencies(t *testing.T) {
	h := newTestRouter(t, map[string]HealthChecker{
		"postgres": func(*http.Request) error { return nil },
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"ok"}`, rr.Body.String())

	h = newTestRouter(t, map[string]HealthChecker{
		"redis": func(*http.Request) error { return errors.New("dial tcp: connection refused") },
	})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
}

func TestOpenBackendsMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := OpenBackends(t.Context(), &Config{StoreDriver: StoreDriverMemory}, logger)
	require.NoError(t, err)
	defer b.Close()

	require.Nil(t, b.HealthCheck())
	products, err := b.Store.ListProducts(t.Context())
	require.NoError(t, err)
	require.Len(t, products, 3)
	require.NoError(t, b.Idempotency.CheckAndInsert(t.Context(), "order:1:a", "orders"))
}
