package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// IdempotencyKeys is an idempotency checker whose old keys can be expired.
type IdempotencyKeys interface {
	shared.IdempotencyChecker
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Backends holds the persistence adapters selected by STORE_DRIVER.
type Backends struct {
	Pool        *pgxpool.Pool
	Store       inventory.Store
	Idempotency IdempotencyKeys
	Audit       shared.AuditRecorder
}

// OpenBackends connects the configured store. The memory driver is seeded with
// demo data and keeps audit entries in the log.
func OpenBackends(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backends, error) {
	if cfg.StoreDriver == StoreDriverMemory {
		store := inventory.NewMemoryStore()
		SeedDemo(store)
		logger.Warn("using in-memory store; data is lost on restart")
		return &Backends{
			Store:       store,
			Idempotency: shared.NewMemoryIdempotencyStore(),
			Audit:       shared.NewSlogAuditLogger(logger),
		}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	return &Backends{
		Pool:        pool,
		Store:       inventory.NewRepository(pool, cfg.PGTxMaxRetries),
		Idempotency: shared.NewIdempotencyStore(pool),
		Audit:       shared.NewAuditLogger(pool),
	}, nil
}

// HealthCheck pings the database when one is configured.
func (b *Backends) HealthCheck() HealthChecker {
	if b == nil || b.Pool == nil {
		return nil
	}
	return func(r *http.Request) error {
		return b.Pool.Ping(r.Context())
	}
}

// Close releases the pool.
func (b *Backends) Close() {
	if b != nil && b.Pool != nil {
		b.Pool.Close()
	}
}
