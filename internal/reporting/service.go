package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Service builds daily series and exports from inventory history.
type Service struct {
	source Source
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires a Source with an optional Cache. Days are bucketed in loc,
// defaulting to UTC.
func NewService(source Source, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, loc: loc, logger: logger}
}

// DailySeries returns one bucket per day of the month with count, quantity and
// amount totals. All three are always computed; metric only selects Values.
func (s *Service) DailySeries(ctx context.Context, month, year int, metric Metric) (Series, error) {
	if month < 1 || month > 12 || year < 1 {
		return Series{}, fmt.Errorf("reporting: month must be 1-12 and year positive: %w", shared.ErrValidation)
	}
	if metric == "" {
		metric = MetricCount
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return Series{}, err
	}

	key, err := s.cache.BuildKey(ctx, keyDaily(year, month, s.loc))
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		series, err := s.buildSeries(ctx, month, year)
		if err != nil {
			return Series{}, err
		}
		series.Metric = metric
		return series, nil
	}

	res, err, _ := s.singleflight(ctx, key, func(ctx context.Context) (any, error) {
		var (
			series  Series
			loadErr error
		)
		err := s.cache.FetchJSON(ctx, key, &series, func(ctx context.Context) (any, error) {
			built, err := s.buildSeries(ctx, month, year)
			loadErr = err
			return built, err
		})
		if loadErr != nil {
			return nil, loadErr
		}
		if err != nil {
			s.logger.Warn("report cache unavailable", slog.Any("error", err))
			return s.buildSeries(ctx, month, year)
		}
		return series, nil
	})
	if err != nil {
		return Series{}, err
	}
	series := res.(Series)
	series.Metric = metric
	return series, nil
}

func (s *Service) buildSeries(ctx context.Context, month, year int) (Series, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0)
	txs, err := s.source.TransactionsBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return Series{}, fmt.Errorf("%w: load transactions: %w", shared.ErrPersistence, err)
	}
	return BuildSeries(txs, month, year, MetricCount, s.loc), nil
}

func (s *Service) singleflight(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
