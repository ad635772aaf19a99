// Package loader turns dataset files into date-indexed numeric series.
//
// Format support is a registered capability set: each Loader handles one
// file format and the Registry dispatches on file extension. The registry
// is built once at startup; resolution failures surface as
// ErrUnsupportedFormat, while structural problems inside a supported
// format (missing columns, unparseable dates) surface as *LoadError so
// callers can tell the two apart and skip the dataset either way.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"corrmine/internal/series"
)

// ErrUnsupportedFormat is returned when no loader is registered for a
// file's extension.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// LoadError reports a failure inside a supported format: the requested
// columns are absent, the date column does not parse, or the file is
// structurally broken.
type LoadError struct {
	Path   string
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("load %s: column %q: %v", e.Path, e.Column, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader parses one file format into a single-column, date-indexed
// series. Implementations interpret dateColumn as the time dimension,
// sort ascending and return only valueColumn.
type Loader interface {
	Load(path, dateColumn, valueColumn string) (*series.Series, error)
}

// Registry maps a lower-case file extension (including the dot) to the
// loader for that format.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the default capability set:
// CSV, JSON and XLSX.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	r.Register(".csv", &CSVLoader{})
	r.Register(".json", &JSONLoader{})
	r.Register(".xlsx", &XLSXLoader{})
	return r
}

// Register adds or replaces the loader for an extension.
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[strings.ToLower(ext)] = l
}

// Extensions returns the registered extensions. The dataset registry
// uses this to decide which files a directory scan picks up.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	return exts
}

// ForPath resolves the loader for a file path, or ErrUnsupportedFormat.
func (r *Registry) ForPath(path string) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return l, nil
}

// Load resolves the loader for path and loads the series through it.
func (r *Registry) Load(path, dateColumn, valueColumn string) (*series.Series, error) {
	l, err := r.ForPath(path)
	if err != nil {
		return nil, err
	}
	return l.Load(path, dateColumn, valueColumn)
}

// dateFormats lists the timestamp layouts accepted across all loaders,
// tried in order. Slash dates are ambiguous: month-first comes before
// day-first, so "03/04/2024" resolves to March 4. Datasets using
// day-first dates should prefer an unambiguous layout.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"2006-01",
}

// parseDate attempts each accepted layout in order.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", value)
}
