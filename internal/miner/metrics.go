package miner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters recorded over a mining run.
type Metrics struct {
	PairsEvaluated metric.Int64Counter
	CacheHits      metric.Int64Counter
	PairsComputed  metric.Int64Counter
	PairsSkipped   metric.Int64Counter
	ResultsFound   metric.Int64Counter
}

// NewMetrics registers the miner's counters on the given meter. A nil
// meter disables metrics (used by tests).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, nil
	}

	m := &Metrics{}
	var err error

	if m.PairsEvaluated, err = meter.Int64Counter("corrmine_pairs_evaluated_total",
		metric.WithDescription("Dataset pairs considered: cached, computed or skipped")); err != nil {
		return nil, fmt.Errorf("create pairs counter: %w", err)
	}
	if m.CacheHits, err = meter.Int64Counter("corrmine_cache_hits_total",
		metric.WithDescription("Pairs resolved from the correlation cache")); err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}
	if m.PairsComputed, err = meter.Int64Counter("corrmine_pairs_computed_total",
		metric.WithDescription("Pairs computed fresh this run")); err != nil {
		return nil, fmt.Errorf("create computed counter: %w", err)
	}
	if m.PairsSkipped, err = meter.Int64Counter("corrmine_pairs_skipped_total",
		metric.WithDescription("Pairs skipped because a dataset failed to load")); err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}
	if m.ResultsFound, err = meter.Int64Counter("corrmine_results_found_total",
		metric.WithDescription("Qualifying correlations found")); err != nil {
		return nil, fmt.Errorf("create results counter: %w", err)
	}

	return m, nil
}

// The record helpers are nil-safe so the miner can run without a meter.

func (m *Metrics) recordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.PairsEvaluated.Add(ctx, 1)
	m.CacheHits.Add(ctx, 1)
}

func (m *Metrics) recordComputed(ctx context.Context) {
	if m == nil {
		return
	}
	m.PairsEvaluated.Add(ctx, 1)
	m.PairsComputed.Add(ctx, 1)
}

func (m *Metrics) recordSkipped(ctx context.Context) {
	if m == nil {
		return
	}
	m.PairsEvaluated.Add(ctx, 1)
	m.PairsSkipped.Add(ctx, 1)
}

func (m *Metrics) recordResult(ctx context.Context) {
	if m == nil {
		return
	}
	m.ResultsFound.Add(ctx, 1)
}
