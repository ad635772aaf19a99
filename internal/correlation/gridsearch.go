package correlation

import (
	"sort"

	"corrmine/internal/series"
)

// DefaultWindows is the default window-size set for the grid search,
// in time-index steps (months, for monthly series).
var DefaultWindows = []int{12, 24, 36, 48, 60}

// DefaultMaxShift is the default symmetric shift range: every integer
// shift in -DefaultMaxShift..+DefaultMaxShift is searched. Both
// directions matter because the sign of a true lead/lag is unknown.
const DefaultMaxShift = 12

// GridSearch runs the fine-grained lag/window search on one pair. Each
// series is first differenced so changes, not absolute levels, drive
// the statistic. For every (window, shift) combination the first series
// is shifted, the second smoothed with a trailing mean of length
// window, the two inner-joined on date, and - when the overlap exceeds
// window rows - Pearson's r and its two-sided p-value are recorded.
//
// A positive shift moves the first series forward relative to the
// second. Degenerate combinations are skipped. The full table is
// returned sorted by ascending p-value, most "significant" first.
func GridSearch(a, b *series.Series, windows []int, maxShift int) []GridPoint {
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	da := a.Diff()
	db := b.Diff()

	var points []GridPoint
	for _, window := range windows {
		smoothed := db.RollingMean(window)

		for shift := -maxShift; shift <= maxShift; shift++ {
			shifted := da.Shift(shift)

			_, x, y := series.Align(shifted, smoothed)
			if len(x) <= window {
				continue
			}

			r, err := Pearson(x, y)
			if err != nil {
				// Zero variance or too little overlap; not a usable
				// combination.
				continue
			}

			points = append(points, GridPoint{
				Window:      window,
				Shift:       shift,
				Correlation: r,
				PValue:      PValue(r, len(x)),
			})
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].PValue < points[j].PValue
	})
	return points
}

// TopK returns the first k rows of a ranked grid table, for reporting
// the most suspicious combinations.
func TopK(points []GridPoint, k int) []GridPoint {
	if k < 0 || k > len(points) {
		k = len(points)
	}
	return points[:k]
}

// BestResult converts the top-ranked grid point into a Result for the
// given pair, or nil when the grid produced no valid combination.
func BestResult(dataset1, dataset2 string, points []GridPoint) *Result {
	if len(points) == 0 {
		return nil
	}
	best := points[0]
	p := best.PValue
	return &Result{
		Dataset1:    dataset1,
		Dataset2:    dataset2,
		Window:      best.Window,
		Shift:       best.Shift,
		Correlation: best.Correlation,
		PValue:      &p,
	}
}
