package correlation

import (
	"errors"
	"math"

	"corrmine/internal/series"
)

// RollingScreen answers "do these two series ever move together
// strongly, over some local window, at any point in their shared
// history?". It aligns the series on their common dates, slides a
// window of length windowSize across them, and takes the maximum
// absolute Pearson coefficient attained anywhere.
//
// Returns a Result only when that maximum meets the threshold; returns
// (nil, nil) for a below-threshold pair and ErrInsufficientData when
// fewer than windowSize aligned rows exist. Degenerate (zero variance)
// windows are skipped, never fatal.
func RollingScreen(a, b *series.Series, windowSize int, threshold float64) (*Result, error) {
	_, x, y := series.Align(a, b)
	if len(x) < windowSize {
		return nil, ErrInsufficientData
	}

	best := math.NaN()
	for i := 0; i+windowSize <= len(x); i++ {
		r, err := Pearson(x[i:i+windowSize], y[i:i+windowSize])
		if err != nil {
			if errors.Is(err, ErrDegenerateStatistics) {
				continue
			}
			return nil, err
		}
		if math.IsNaN(best) || math.Abs(r) > math.Abs(best) {
			best = r
		}
	}

	if math.IsNaN(best) || math.Abs(best) < threshold {
		return nil, nil
	}

	return &Result{
		Dataset1:    a.Name,
		Dataset2:    b.Name,
		Window:      windowSize,
		Shift:       0,
		Correlation: best,
	}, nil
}
