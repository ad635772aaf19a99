// Package cache persists correlation results between mining runs.
//
// The store is a single JSON document mapping canonical pair keys to
// result entries. It is loaded once when a run starts and flushed once
// when it ends; the flush replaces the file atomically (write to a temp
// file, then rename), so a crash mid-run can lose at most the current
// run's new entries and never corrupts what was already persisted.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"corrmine/internal/correlation"
)

const cacheFileName = "correlation_cache.json"

// Entry is the persisted record for one dataset pair. Window, Shift and
// PValue are optional: the rolling screen stores no p-value, and a
// no-result marker stores no statistic at all.
type Entry struct {
	Dataset1    string   `json:"dataset1_name"`
	Dataset2    string   `json:"dataset2_name"`
	Window      *int     `json:"window,omitempty"`
	Shift       *int     `json:"shift,omitempty"`
	Correlation float64  `json:"correlation"`
	PValue      *float64 `json:"p_value,omitempty"`
	NoResult    bool     `json:"no_result,omitempty"`
}

// Result converts the entry back into a correlation result, or nil for
// a no-result marker.
func (e Entry) Result() *correlation.Result {
	if e.NoResult {
		return nil
	}
	r := &correlation.Result{
		Dataset1:    e.Dataset1,
		Dataset2:    e.Dataset2,
		Correlation: e.Correlation,
		PValue:      e.PValue,
	}
	if e.Window != nil {
		r.Window = *e.Window
	}
	if e.Shift != nil {
		r.Shift = *e.Shift
	}
	return r
}

// Stats is a snapshot of the cache's runtime counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Cache is the durable pair-key to result mapping. Get/Put are safe for
// concurrent use, but by convention only the orchestrator writes to it;
// workers return results and never touch the store.
type Cache struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]Entry
	logger  *slog.Logger

	hits      int64
	misses    int64
	evictions int64
}

// New creates a cache persisting into dir.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:     dir,
		entries: make(map[string]Entry),
		logger:  logger.With(slog.String("component", "correlation-cache")),
	}
}

func (c *Cache) path() string {
	return filepath.Join(c.dir, cacheFileName)
}

// Load reads the persisted store. A missing file is a normal cold
// start; an unreadable or corrupt file is logged and treated as empty,
// never fatal - the run simply recomputes.
func (c *Cache) Load() error {
	data, err := os.ReadFile(c.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		c.logger.Warn("cache unreadable, starting empty", "path", c.path(), "error", err)
		return nil
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("cache corrupt, starting empty", "path", c.path(), "error", err)
		return nil
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.logger.Info("cache loaded", "entries", len(entries))
	return nil
}

// Get returns the entry for a pair key, counting the hit or miss.
func (c *Cache) Get(pairKey string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[pairKey]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

// Put stores a computed result under the pair key.
func (c *Cache) Put(pairKey string, result *correlation.Result) {
	e := Entry{
		Dataset1:    result.Dataset1,
		Dataset2:    result.Dataset2,
		Correlation: result.Correlation,
		PValue:      result.PValue,
	}
	w, s := result.Window, result.Shift
	e.Window = &w
	e.Shift = &s

	c.mu.Lock()
	c.entries[pairKey] = e
	c.mu.Unlock()
}

// PutNoResult stores an explicit "nothing found" marker so the pair is
// not recomputed next run.
func (c *Cache) PutNoResult(pairKey, dataset1, dataset2 string) {
	c.mu.Lock()
	c.entries[pairKey] = Entry{
		Dataset1: dataset1,
		Dataset2: dataset2,
		NoResult: true,
	}
	c.mu.Unlock()
}

// Prune drops every entry whose pair key is not in live, returning the
// number evicted. Entries for dataset identities that no longer exist
// go away without touching the rest.
func (c *Cache) Prune(live map[string]bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key := range c.entries {
		if !live[key] {
			delete(c.entries, key)
			evicted++
		}
	}
	c.evictions += int64(evicted)

	if evicted > 0 {
		c.logger.Info("pruned orphaned cache entries", "evicted", evicted)
	}
	return evicted
}

// Flush writes the store durably. The document is written to a temp
// file in the same directory and renamed over the old store, so readers
// and crashes see either the previous version or the new one, never a
// partial write.
func (c *Cache) Flush() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, cacheFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache file: %w", err)
	}

	c.logger.Info("cache flushed", "path", c.path(), "entries", c.Len())
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the runtime counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
