// Package dataset maintains the content-addressed catalog of datasets
// available for mining.
//
// A dataset's identity is the BLAKE2b-256 digest of its file bytes, not
// its path: the same content under two names is one dataset, and editing
// a file produces a new identity (the old one is simply forgotten, and
// its cache entries become prunable orphans).
package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Descriptor identifies one dataset and carries its load configuration.
// Once a correlation computation starts it must see one consistent
// descriptor, so descriptors are passed by value and the registry never
// mutates one after handing it out.
type Descriptor struct {
	Hash        string
	Name        string
	Path        string
	DateColumn  string
	ValueColumn string
	ModTime     time.Time
}

// Configured reports whether the descriptor has its column selectors
// set. Only configured datasets participate in pair enumeration.
func (d Descriptor) Configured() bool {
	return d.DateColumn != "" && d.ValueColumn != ""
}

// Pair is an unordered pair of dataset descriptors.
type Pair struct {
	A, B Descriptor
}

// Key returns the canonical cache key for the pair.
func (p Pair) Key() string {
	return PairKey(p.A.Hash, p.B.Hash)
}

// PairKey builds an order-independent identity for two dataset hashes:
// the hashes are sorted before joining, so PairKey(a, b) == PairKey(b, a)
// no matter what order enumeration produced them in.
func PairKey(hashA, hashB string) string {
	if hashB < hashA {
		hashA, hashB = hashB, hashA
	}
	return hashA + "_" + hashB
}

// Registry is the catalog of known datasets, keyed by content hash.
type Registry struct {
	datasets   map[string]Descriptor
	extensions map[string]bool
	logger     *slog.Logger
}

// NewRegistry creates an empty registry recognizing the given file
// extensions (lower-case, with dot) during directory scans.
func NewRegistry(extensions []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}

	return &Registry{
		datasets:   make(map[string]Descriptor),
		extensions: extSet,
		logger:     logger.With(slog.String("component", "dataset-registry")),
	}
}

// HashFile computes the content address of a file: the hex BLAKE2b-256
// digest of its bytes. Stable for unchanged bytes, changed whenever the
// bytes change.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// Scan discovers every file with a recognized extension in dir (flat, no
// recursion), hashes it and creates or updates its descriptor.
// Re-scanning is idempotent: unchanged files keep their identity, while
// a changed file produces a new hash and therefore a new identity. The
// previous identity for that path is dropped so its cache entries can be
// pruned later.
func (r *Registry) Scan(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read data directory %s: %w", dir, err)
	}

	seen := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !r.extensions[ext] {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			r.logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}

		if err := r.observe(path, info.ModTime()); err != nil {
			r.logger.Warn("skipping dataset", "path", path, "error", err)
			continue
		}
		seen++
	}

	r.logger.Info("directory scan completed", "dir", dir, "datasets", seen)
	return nil
}

// observe records a file in the catalog, rehashing only when the file is
// new to the registry or its modification timestamp advanced past the
// one on record.
func (r *Registry) observe(path string, modTime time.Time) error {
	for hash, d := range r.datasets {
		if d.Path != path {
			continue
		}
		if !modTime.After(d.ModTime) {
			return nil // unchanged; identity stands
		}
		// Stale hash: the content changed, so this is a new identity.
		delete(r.datasets, hash)
		break
	}

	hash, err := HashFile(path)
	if err != nil {
		return err
	}

	if existing, ok := r.datasets[hash]; ok {
		// Same content seen before (possibly under another path); keep
		// its configuration, refresh the location metadata.
		existing.Path = path
		existing.ModTime = modTime
		r.datasets[hash] = existing
		return nil
	}

	r.datasets[hash] = Descriptor{
		Hash:    hash,
		Name:    filepath.Base(path),
		Path:    path,
		ModTime: modTime,
	}
	return nil
}

// Register adds a dataset explicitly with its column configuration. If
// the content is already known (for example from a prior Scan), the
// configuration is merged into the existing descriptor instead of
// creating a duplicate.
func (r *Registry) Register(path, dateColumn, valueColumn string) (Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("stat %s: %w", path, err)
	}

	hash, err := HashFile(path)
	if err != nil {
		return Descriptor{}, err
	}

	d, ok := r.datasets[hash]
	if !ok {
		d = Descriptor{
			Hash: hash,
			Name: filepath.Base(path),
			Path: path,
		}
	}
	d.DateColumn = dateColumn
	d.ValueColumn = valueColumn
	d.ModTime = info.ModTime()
	r.datasets[hash] = d

	return d, nil
}

// ApplyColumnMap applies an externally supplied filename-to-columns
// mapping to every cataloged dataset, and falls back to the given
// defaults for files the map does not mention. Called once at registry
// build time, after Scan.
func (r *Registry) ApplyColumnMap(columnMap map[string][2]string, defaultDate, defaultValue string) {
	for hash, d := range r.datasets {
		if cols, ok := columnMap[d.Name]; ok {
			d.DateColumn = cols[0]
			d.ValueColumn = cols[1]
		} else if !d.Configured() {
			d.DateColumn = defaultDate
			d.ValueColumn = defaultValue
		}
		r.datasets[hash] = d
	}
}

// Get returns the descriptor for a content hash.
func (r *Registry) Get(hash string) (Descriptor, bool) {
	d, ok := r.datasets[hash]
	return d, ok
}

// Len returns the number of cataloged datasets.
func (r *Registry) Len() int {
	return len(r.datasets)
}

// Descriptors returns all cataloged descriptors sorted by hash.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Pairs enumerates every unordered pair of configured datasets: no self
// pairs, no duplicates, deterministic order. Descriptors are taken in
// name order so reported results read naturally; the cache key is
// order-independent regardless. This is the unit of parallel work for
// the miner and is O(n²) in dataset count.
func (r *Registry) Pairs() []Pair {
	descriptors := r.Descriptors()
	sort.Slice(descriptors, func(i, j int) bool {
		if descriptors[i].Name != descriptors[j].Name {
			return descriptors[i].Name < descriptors[j].Name
		}
		return descriptors[i].Hash < descriptors[j].Hash
	})

	var pairs []Pair
	for i := 0; i < len(descriptors); i++ {
		if !descriptors[i].Configured() {
			continue
		}
		for j := i + 1; j < len(descriptors); j++ {
			if !descriptors[j].Configured() {
				continue
			}
			pairs = append(pairs, Pair{A: descriptors[i], B: descriptors[j]})
		}
	}
	return pairs
}

// LiveKeys returns the set of pair keys for every enumerable pair,
// used to prune cache entries whose datasets no longer exist.
func (r *Registry) LiveKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, p := range r.Pairs() {
		keys[p.Key()] = true
	}
	return keys
}
