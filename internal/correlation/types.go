// Package correlation implements the pairwise correlation-search
// algorithms: a rolling-window maximum-correlation screen and a
// lag/window grid search over differenced series.
//
// Both deliberately search a wide parameter space; a hit means "these
// two series can be made to look related", not that they are. That is
// the point of the tool.
package correlation

import "errors"

// ErrInsufficientData indicates the two series share too few aligned
// rows for the requested window. This is "no result", not a failure.
var ErrInsufficientData = errors.New("insufficient aligned data")

// ErrDegenerateStatistics indicates a correlation was attempted on data
// with zero variance, where Pearson's r is undefined. Grid combinations
// hitting this are skipped silently.
var ErrDegenerateStatistics = errors.New("degenerate statistics: zero variance")

// Result is the outcome of a correlation search on one dataset pair.
// Immutable once produced; persisted into the correlation cache.
type Result struct {
	Dataset1    string
	Dataset2    string
	Window      int
	Shift       int
	Correlation float64
	// PValue is set by the grid search only; the rolling screen reports
	// a bare coefficient.
	PValue *float64
}

// GridPoint is one row of the grid-search table: the (window, shift)
// combination and the statistic it produced.
type GridPoint struct {
	Window      int     `json:"window"`
	Shift       int     `json:"shift"`
	Correlation float64 `json:"correlation"`
	PValue      float64 `json:"p_value"`
}
