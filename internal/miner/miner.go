// Package miner orchestrates a mining run: it enumerates every
// unordered dataset pair, resolves what it can from the correlation
// cache, dispatches the rest to a bounded worker pool, and aggregates
// qualifying results.
//
// Ownership rule: workers compute and return outcomes; only the
// orchestrating goroutine reads from or commits to the cache, and the
// durable store is written exactly once, at the end of the run. A
// duplicated pair would at worst be computed twice, never corrupt the
// store.
package miner

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"corrmine/internal/cache"
	"corrmine/internal/config"
	"corrmine/internal/correlation"
	"corrmine/internal/dataset"
	"corrmine/internal/loader"
	"corrmine/internal/series"
)

// Progress reports one finished pair out of the run's total.
type Progress struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Pair  string `json:"pair"`
}

// PairGrid is the ranked grid-search table for one pair, truncated to
// the configured top-K rows.
type PairGrid struct {
	Dataset1 string                  `json:"dataset1"`
	Dataset2 string                  `json:"dataset2"`
	Rows     []correlation.GridPoint `json:"rows"`
}

// RunReport is the aggregated outcome of one mining run. Computed
// counts pairs evaluated fresh and successfully; Skipped counts pairs
// that failed to evaluate. Grid carries the per-pair top-K tables in
// grid mode, for pairs computed this run (cache hits resolve to their
// best row only).
type RunReport struct {
	RunID      string               `json:"run_id"`
	Mode       string               `json:"mode"`
	StartedAt  time.Time            `json:"started_at"`
	Elapsed    time.Duration        `json:"elapsed"`
	PairsTotal int                  `json:"pairs_total"`
	CacheHits  int                  `json:"cache_hits"`
	Computed   int                  `json:"computed"`
	Skipped    int                  `json:"skipped"`
	Results    []correlation.Result `json:"results"`
	Grid       []PairGrid           `json:"grid,omitempty"`
}

// outcome is what a worker hands back for one pair.
type outcome struct {
	pair   dataset.Pair
	result *correlation.Result
	grid   []correlation.GridPoint
	err    error
}

// Miner runs correlation searches across a dataset registry.
type Miner struct {
	registry *dataset.Registry
	loaders  *loader.Registry
	cache    *cache.Cache
	cfg      config.MiningConfig
	logger   *slog.Logger
	metrics  *Metrics

	// onProgress, when set, is invoked from the orchestrating goroutine
	// after each pair completes.
	onProgress func(Progress)

	// In-process series cache, keyed by dataset hash: each dataset is
	// read from disk at most once per run even when it appears in many
	// pairs. Guarded because workers load concurrently.
	seriesMu    sync.Mutex
	seriesCache map[string]*series.Series
}

// New creates a miner. metrics may be nil.
func New(registry *dataset.Registry, loaders *loader.Registry, c *cache.Cache,
	cfg config.MiningConfig, logger *slog.Logger, metrics *Metrics) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{
		registry:    registry,
		loaders:     loaders,
		cache:       c,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "miner")),
		metrics:     metrics,
		seriesCache: make(map[string]*series.Series),
	}
}

// OnProgress registers a progress callback. Must be set before Run.
func (m *Miner) OnProgress(fn func(Progress)) {
	m.onProgress = fn
}

// Run executes one full mining pass and returns the aggregated report.
// Per-pair failures are isolated: a dataset that cannot be loaded
// skips its pairs and the run continues.
func (m *Miner) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Mode:      m.cfg.Mode,
		StartedAt: time.Now(),
	}
	logger := m.logger.With(slog.String("run_id", report.RunID))

	pairs := m.registry.Pairs()
	report.PairsTotal = len(pairs)

	logger.InfoContext(ctx, "mining run started",
		slog.String("mode", m.cfg.Mode),
		slog.Int("datasets", m.registry.Len()),
		slog.Int("pairs", len(pairs)),
		slog.Int("workers", m.workers()),
	)

	// Resolve cache hits up front; only misses go to the pool. The
	// cache is consulted here, in the orchestrator, never by workers.
	var misses []dataset.Pair
	done := 0
	for _, p := range pairs {
		entry, ok := m.cache.Get(p.Key())
		if !ok {
			misses = append(misses, p)
			continue
		}
		report.CacheHits++
		m.metrics.recordCacheHit(ctx)
		if r := entry.Result(); r != nil {
			report.Results = append(report.Results, *r)
		}
		done++
		m.progress(report.RunID, done, len(pairs), p)
	}

	outcomes := make(chan outcome)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())

	go func() {
		for _, p := range misses {
			pair := p
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case outcomes <- m.evaluate(pair):
					return nil
				}
			})
		}
		g.Wait()
		close(outcomes)
	}()

	// Collection barrier: outcomes arrive in completion order, and only
	// this goroutine commits them.
	for o := range outcomes {
		key := o.pair.Key()

		switch {
		case o.err != nil:
			report.Skipped++
			m.metrics.recordSkipped(ctx)
			logger.WarnContext(ctx, "pair skipped",
				slog.String("dataset1", o.pair.A.Name),
				slog.String("dataset2", o.pair.B.Name),
				slog.Any("error", o.err),
			)
		case o.result != nil:
			report.Computed++
			m.metrics.recordComputed(ctx)
			m.cache.Put(key, o.result)
			report.Results = append(report.Results, *o.result)
			m.metrics.recordResult(ctx)
		default:
			report.Computed++
			m.metrics.recordComputed(ctx)
			m.cache.PutNoResult(key, o.pair.A.Name, o.pair.B.Name)
		}

		if len(o.grid) > 0 {
			report.Grid = append(report.Grid, PairGrid{
				Dataset1: o.pair.A.Name,
				Dataset2: o.pair.B.Name,
				Rows:     o.grid,
			})
		}

		done++
		m.progress(report.RunID, done, len(pairs), o.pair)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.cache.Prune(m.registry.LiveKeys())
	if err := m.cache.Flush(); err != nil {
		// The run itself succeeded; losing the flush only costs a
		// recomputation next time.
		logger.WarnContext(ctx, "cache flush failed", slog.Any("error", err))
	}

	sortResults(report.Results)
	sort.Slice(report.Grid, func(i, j int) bool {
		if report.Grid[i].Dataset1 != report.Grid[j].Dataset1 {
			return report.Grid[i].Dataset1 < report.Grid[j].Dataset1
		}
		return report.Grid[i].Dataset2 < report.Grid[j].Dataset2
	})
	report.Elapsed = time.Since(report.StartedAt)

	logger.InfoContext(ctx, "mining run completed",
		slog.Int("results", len(report.Results)),
		slog.Int("cache_hits", report.CacheHits),
		slog.Int("computed", report.Computed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// evaluate runs the configured search on one pair. Called from worker
// goroutines; must not touch the cache.
func (m *Miner) evaluate(p dataset.Pair) outcome {
	a, err := m.loadSeries(p.A)
	if err != nil {
		return outcome{pair: p, err: err}
	}
	b, err := m.loadSeries(p.B)
	if err != nil {
		return outcome{pair: p, err: err}
	}

	switch m.cfg.Mode {
	case "grid":
		points := correlation.GridSearch(a, b, m.cfg.Windows, m.cfg.MaxShift)
		return outcome{
			pair:   p,
			result: correlation.BestResult(p.A.Name, p.B.Name, points),
			grid:   correlation.TopK(points, m.cfg.TopK),
		}
	default:
		result, err := correlation.RollingScreen(a, b, m.cfg.WindowSize, m.cfg.Threshold)
		if errors.Is(err, correlation.ErrInsufficientData) {
			// Not enough shared history is "nothing found", not a failure.
			return outcome{pair: p}
		}
		if err != nil {
			return outcome{pair: p, err: err}
		}
		return outcome{pair: p, result: result}
	}
}

// loadSeries loads a dataset through the loader registry, memoizing by
// content hash for the duration of the run.
func (m *Miner) loadSeries(d dataset.Descriptor) (*series.Series, error) {
	m.seriesMu.Lock()
	if s, ok := m.seriesCache[d.Hash]; ok {
		m.seriesMu.Unlock()
		return s, nil
	}
	m.seriesMu.Unlock()

	s, err := m.loaders.Load(d.Path, d.DateColumn, d.ValueColumn)
	if err != nil {
		return nil, err
	}
	s.Name = d.Name

	m.seriesMu.Lock()
	m.seriesCache[d.Hash] = s
	m.seriesMu.Unlock()
	return s, nil
}

func (m *Miner) workers() int {
	if m.cfg.Workers > 0 {
		return m.cfg.Workers
	}
	return runtime.NumCPU()
}

func (m *Miner) progress(runID string, done, total int, p dataset.Pair) {
	if m.onProgress == nil {
		return
	}
	m.onProgress(Progress{
		RunID: runID,
		Done:  done,
		Total: total,
		Pair:  p.A.Name + " / " + p.B.Name,
	})
}

// sortResults orders results deterministically by dataset names so a
// warm-cache rerun reproduces the identical list.
func sortResults(results []correlation.Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Dataset1 != results[j].Dataset1 {
			return results[i].Dataset1 < results[j].Dataset1
		}
		return results[i].Dataset2 < results[j].Dataset2
	})
}
