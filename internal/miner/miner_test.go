package miner

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corrmine/internal/cache"
	"corrmine/internal/config"
	"corrmine/internal/dataset"
	"corrmine/internal/loader"
)

// writeMonthlyCSV writes a date,value CSV with one row per month
// starting at 2015-01.
func writeMonthlyCSV(t *testing.T, dir, name string, values []float64) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("date,value\n")
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		fmt.Fprintf(&sb, "%s,%g\n", start.AddDate(0, i, 0).Format("2006-01-02"), v)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sb.String()), 0644))
}

func screenConfig(workers int) config.MiningConfig {
	return config.MiningConfig{
		Mode:               "screen",
		WindowSize:         12,
		Threshold:          0.7,
		Windows:            []int{12, 24},
		MaxShift:           6,
		TopK:               5,
		Workers:            workers,
		DefaultDateColumn:  "date",
		DefaultValueColumn: "value",
	}
}

// newMiner builds a miner over dataDir with a cache in cacheDir.
func newMiner(t *testing.T, dataDir, cacheDir string, cfg config.MiningConfig) (*Miner, *cache.Cache) {
	t.Helper()

	loaders := loader.NewRegistry()
	registry := dataset.NewRegistry(loaders.Extensions(), nil)
	require.NoError(t, registry.Scan(dataDir))
	registry.ApplyColumnMap(nil, cfg.DefaultDateColumn, cfg.DefaultValueColumn)

	c := cache.New(cacheDir, nil)
	require.NoError(t, c.Load())

	return New(registry, loaders, c, cfg, nil, nil), c
}

func correlatedFixtures(t *testing.T, dir string) {
	rng := rand.New(rand.NewSource(21))

	base := make([]float64, 48)
	double := make([]float64, 48)
	noise := make([]float64, 48)
	for i := range base {
		base[i] = rng.NormFloat64()
		double[i] = 2 * base[i]
		noise[i] = rng.NormFloat64()
	}

	writeMonthlyCSV(t, dir, "base.csv", base)
	writeMonthlyCSV(t, dir, "double.csv", double)
	writeMonthlyCSV(t, dir, "noise.csv", noise)
}

func TestRunScreenFindsCorrelatedPair(t *testing.T) {
	dataDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m, _ := newMiner(t, dataDir, t.TempDir(), screenConfig(2))
	report, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.PairsTotal)
	assert.Equal(t, 3, report.Computed)
	assert.Equal(t, 0, report.CacheHits)
	assert.Equal(t, 0, report.Skipped)
	assert.NotEmpty(t, report.RunID)

	// base/double is a perfect linear pair and must qualify.
	found := false
	for _, r := range report.Results {
		if r.Dataset1 == "base.csv" && r.Dataset2 == "double.csv" {
			found = true
			assert.InDelta(t, 1.0, math.Abs(r.Correlation), 1e-9)
			assert.Equal(t, 12, r.Window)
		}
	}
	assert.True(t, found, "perfectly correlated pair must be reported")
}

func TestRunWarmCacheIsIdempotent(t *testing.T) {
	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m1, _ := newMiner(t, dataDir, cacheDir, screenConfig(2))
	first, err := m1.Run(context.Background())
	require.NoError(t, err)

	// Fresh miner, same directories: everything resolves from cache.
	m2, _ := newMiner(t, dataDir, cacheDir, screenConfig(2))
	second, err := m2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, second.Computed, "warm cache must perform zero recomputation")
	assert.Equal(t, second.PairsTotal, second.CacheHits)
	assert.Equal(t, first.Results, second.Results, "result set must be identical")
}

func TestRunIsolatesLoadFailures(t *testing.T) {
	dataDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	// A structurally broken dataset: recognized extension, no parseable
	// content.
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "broken.csv"), []byte("garbage"), 0644))

	m, _ := newMiner(t, dataDir, t.TempDir(), screenConfig(2))
	report, err := m.Run(context.Background())
	require.NoError(t, err, "one bad dataset must not abort the run")

	assert.Equal(t, 6, report.PairsTotal)
	assert.Equal(t, 3, report.Skipped, "every pair touching the broken dataset is skipped")
	assert.Equal(t, 3, report.Computed, "skipped pairs do not count as computed")

	// The good pair still comes through.
	found := false
	for _, r := range report.Results {
		if r.Dataset1 == "base.csv" && r.Dataset2 == "double.csv" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunGridMode(t *testing.T) {
	dataDir := t.TempDir()

	rng := rand.New(rand.NewSource(33))
	n := 120
	a := make([]float64, n)
	b := make([]float64, n)
	level := 0.0
	for i := 0; i < n; i++ {
		level += rng.NormFloat64()
		a[i] = level
		b[i] = level + 0.1*rng.NormFloat64()
	}
	writeMonthlyCSV(t, dataDir, "walk1.csv", a)
	writeMonthlyCSV(t, dataDir, "walk2.csv", b)

	cfg := screenConfig(2)
	cfg.Mode = "grid"
	cfg.TopK = 3
	m, _ := newMiner(t, dataDir, t.TempDir(), cfg)

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	r := report.Results[0]
	assert.Contains(t, []int{12, 24}, r.Window)
	require.NotNil(t, r.PValue, "grid mode carries a p-value")
	assert.GreaterOrEqual(t, *r.PValue, 0.0)

	// The report carries the ranked grid table, truncated to top_k.
	require.Len(t, report.Grid, 1)
	table := report.Grid[0]
	assert.Equal(t, "walk1.csv", table.Dataset1)
	assert.Equal(t, "walk2.csv", table.Dataset2)
	require.Len(t, table.Rows, 3)
	for i := 1; i < len(table.Rows); i++ {
		assert.LessOrEqual(t, table.Rows[i-1].PValue, table.Rows[i].PValue)
	}
	assert.Equal(t, r.Window, table.Rows[0].Window, "best result is the table's top row")
	assert.Equal(t, r.Shift, table.Rows[0].Shift)
}

func TestRunScreenModeReportsNoGridTables(t *testing.T) {
	dataDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m, _ := newMiner(t, dataDir, t.TempDir(), screenConfig(2))
	report, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Grid)
}

func TestRunStoresNoResultMarker(t *testing.T) {
	dataDir := t.TempDir()
	cacheDir := t.TempDir()

	// Two short series: insufficient data for the window, so the pair
	// produces an explicit no-result entry.
	writeMonthlyCSV(t, dataDir, "short1.csv", []float64{1, 2, 3})
	writeMonthlyCSV(t, dataDir, "short2.csv", []float64{4, 5, 6})

	m, c := newMiner(t, dataDir, cacheDir, screenConfig(1))
	report, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.Skipped, "insufficient data is no-result, not a failure")
	assert.Equal(t, 1, c.Len(), "no-result marker is cached")

	// Second run hits the marker.
	m2, _ := newMiner(t, dataDir, cacheDir, screenConfig(1))
	second, err := m2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheHits)
	assert.Equal(t, 0, second.Computed)
}

func TestRunFlushesDurableCache(t *testing.T) {
	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m, _ := newMiner(t, dataDir, cacheDir, screenConfig(2))
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cacheDir, "correlation_cache.json"))
	assert.NoError(t, err, "cache must be written at end of run")
}

func TestRunPrunesOrphanedEntries(t *testing.T) {
	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m, _ := newMiner(t, dataDir, cacheDir, screenConfig(2))
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	// Remove one dataset; its pairs become orphans on the next run.
	require.NoError(t, os.Remove(filepath.Join(dataDir, "noise.csv")))

	m2, c2 := newMiner(t, dataDir, cacheDir, screenConfig(2))
	_, err = m2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, c2.Len(), "only the surviving pair's entry remains")
}

func TestRunProgressCallback(t *testing.T) {
	dataDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m, _ := newMiner(t, dataDir, t.TempDir(), screenConfig(2))

	var events []Progress
	m.OnProgress(func(p Progress) { events = append(events, p) })

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events, report.PairsTotal)
	last := events[len(events)-1]
	assert.Equal(t, report.PairsTotal, last.Done)
	assert.Equal(t, report.PairsTotal, last.Total)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestRunRespectsCancellation(t *testing.T) {
	dataDir := t.TempDir()
	correlatedFixtures(t, dataDir)

	m, _ := newMiner(t, dataDir, t.TempDir(), screenConfig(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx)
	assert.Error(t, err)
}
