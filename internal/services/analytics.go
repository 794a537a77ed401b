package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/loader"
	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
)

// LoadRecorder receives the outcome of every load attempt.
type LoadRecorder interface {
	ObserveLoad(source string, stats pipeline.Stats, duration time.Duration, cacheHit bool, err error)
}

type Options struct {
	Source   loader.Source
	Schema   loader.Schema
	Cleaning pipeline.Config
	Fetcher  loader.Fetcher
	Cache    *TableCache
	Recorder LoadRecorder
	Logger   *slog.Logger
}

// Analytics owns the cleaned table for one session and answers aggregation
// queries against it. Queries never mutate the table, so they are safe to
// run concurrently.
type Analytics struct {
	mu       sync.RWMutex
	current  *CachedTable
	key      CacheKey
	schema   loader.Schema
	loader   *loader.Loader
	pipeline *pipeline.Pipeline
	cache    *TableCache
	recorder LoadRecorder
	logger   *slog.Logger
}

func NewAnalytics(opts Options) *Analytics {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = loader.NewFetcher(30 * time.Second)
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewTableCache()
	}
	schema := opts.Schema
	if schema == (loader.Schema{}) {
		schema = loader.DefaultSchema()
	}

	p := pipeline.New(opts.Cleaning, logger)
	return &Analytics{
		key:      CacheKey{Source: opts.Source, Schema: schema, Config: p.Config()},
		schema:   schema,
		loader:   loader.New(fetcher, logger),
		pipeline: p,
		cache:    cache,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// SetTable installs an already cleaned table, bypassing the loader.
func (a *Analytics) SetTable(table *pipeline.CleanedTable, stats pipeline.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = &CachedTable{
		Table:    table,
		Stats:    stats,
		LoadedAt: time.Now(),
	}
}

// SetData cleans txs with the session's pipeline and installs the result.
func (a *Analytics) SetData(ctx context.Context, txs []models.Transaction) error {
	table, stats, err := a.pipeline.Run(ctx, txs)
	if err != nil {
		return err
	}
	a.SetTable(table, stats)
	return nil
}

// Load produces the cleaned table through the cache. A cache hit skips
// fetching and cleaning entirely.
func (a *Analytics) Load(ctx context.Context) error {
	start := time.Now()
	a.logger.Info("loading transactions", "source", a.key.Source.Locator)

	entry, hit, err := a.cache.GetOrLoad(ctx, a.key, a.build)
	a.observe(entry, time.Since(start), hit, err)
	if err != nil {
		return fmt.Errorf("load %s: %w", a.key.Source.Locator, err)
	}

	a.mu.Lock()
	a.current = entry
	a.mu.Unlock()

	a.logger.Info("cleaned table ready",
		"records", entry.Table.Len(),
		"cache_hit", hit,
		"duration", time.Since(start),
	)
	return nil
}

// Reload drops the cached table for this session's key and loads again.
func (a *Analytics) Reload(ctx context.Context) error {
	a.cache.Invalidate(a.key)
	return a.Load(ctx)
}

func (a *Analytics) build(ctx context.Context) (*CachedTable, error) {
	txs, err := a.loader.Load(ctx, a.key.Source, a.schema)
	if err != nil {
		return nil, err
	}
	table, stats, err := a.pipeline.Run(ctx, txs)
	if err != nil {
		return nil, err
	}
	return &CachedTable{Table: table, Stats: stats, LoadedAt: time.Now()}, nil
}

func (a *Analytics) observe(entry *CachedTable, d time.Duration, hit bool, err error) {
	if a.recorder == nil {
		return
	}
	var stats pipeline.Stats
	if entry != nil {
		stats = entry.Stats
	}
	a.recorder.ObserveLoad(a.key.Source.Locator, stats, d, hit, err)
}

func (a *Analytics) snapshot() (*CachedTable, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil, apperrors.ServiceUnavailable("transaction data has not been loaded")
	}
	return a.current, nil
}

func (a *Analytics) CleanedTable() (*pipeline.CleanedTable, error) {
	snap, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Table, nil
}

func (a *Analytics) CleaningStats() (pipeline.Stats, error) {
	snap, err := a.snapshot()
	if err != nil {
		return pipeline.Stats{}, err
	}
	return snap.Stats, nil
}

func (a *Analytics) MonthlyRevenue(f models.Filter) ([]models.MonthlyRevenue, error) {
	snap, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return MonthlyRevenue(snap.Table, f), nil
}

func (a *Analytics) TopProducts(f models.Filter, n int) ([]models.ProductRevenue, error) {
	snap, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return TopProducts(snap.Table, f, n)
}

func (a *Analytics) TopCountries(f models.Filter, n int) ([]models.CountryRevenue, error) {
	snap, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return TopCountries(snap.Table, f, n)
}

func (a *Analytics) OrderStats(f models.Filter) (models.OrderStats, error) {
	snap, err := a.snapshot()
	if err != nil {
		return models.OrderStats{}, err
	}
	return OrderStats(snap.Table, f), nil
}

func (a *Analytics) RevenueSummary(f models.Filter) (models.RevenueSummary, error) {
	snap, err := a.snapshot()
	if err != nil {
		return models.RevenueSummary{}, err
	}
	return RevenueSummary(snap.Table, f), nil
}

// DateRange fails with NoData when the cleaned table is empty.
func (a *Analytics) DateRange() (models.DateRange, error) {
	snap, err := a.snapshot()
	if err != nil {
		return models.DateRange{}, err
	}
	first, last, ok := DateRange(snap.Table)
	if !ok {
		return models.DateRange{}, apperrors.NoData("cleaned table is empty")
	}
	return models.DateRange{First: first, Last: last}, nil
}

func (a *Analytics) Head(f models.Filter, k int) ([]models.CleanedRecord, error) {
	snap, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return Head(snap.Table, f, k)
}

// Stats is a monitoring snapshot.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"source":        a.key.Source.Locator,
		"cleaning":      a.key.Config.String(),
		"cached_tables": a.cache.Len(),
		"loaded":        a.current != nil,
	}
	if a.current != nil {
		stats["record_count"] = a.current.Table.Len()
		stats["input_count"] = a.current.Stats.Input
		stats["missing_rows"] = a.current.Stats.Missing.Rows
		stats["last_loaded"] = a.current.LoadedAt
	}
	return stats
}
