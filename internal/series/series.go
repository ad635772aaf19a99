// Package series provides the date-indexed numeric series type shared by
// the loaders and the correlation engine, together with the alignment and
// transform operations the search algorithms are built from.
//
// A Series is an immutable snapshot: every operation returns a new Series
// and never mutates its receiver or arguments. This is what allows series
// to be handed to concurrent pair workers without locking.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Series is a single named numeric column indexed by date. Dates are
// strictly ascending with no duplicates; Dates and Values always have
// equal length.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// New builds a Series from parallel date/value slices. Input order is
// arbitrary; entries are sorted ascending by date and duplicate dates are
// collapsed (the last value for a date wins, matching overwrite-on-load
// semantics).
func New(name string, dates []time.Time, values []float64) (*Series, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("series %q: %d dates but %d values", name, len(dates), len(values))
	}

	type point struct {
		date  time.Time
		value float64
	}

	points := make([]point, len(dates))
	for i := range dates {
		points[i] = point{date: dates[i], value: values[i]}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].date.Before(points[j].date)
	})

	s := &Series{Name: name}
	for _, p := range points {
		n := len(s.Dates)
		if n > 0 && s.Dates[n-1].Equal(p.date) {
			s.Values[n-1] = p.value
			continue
		}
		s.Dates = append(s.Dates, p.date)
		s.Values = append(s.Values, p.value)
	}

	return s, nil
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.Dates)
}

// At returns the observation at index i.
func (s *Series) At(i int) (time.Time, float64) {
	return s.Dates[i], s.Values[i]
}

// Align inner-joins two series on exact date equality and returns the two
// value columns over the shared index. Rows present in only one series
// are dropped. Both inputs must be sorted ascending, which New
// guarantees, so a single merge pass suffices.
func Align(a, b *Series) (dates []time.Time, x, y []float64) {
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		switch {
		case a.Dates[i].Before(b.Dates[j]):
			i++
		case b.Dates[j].Before(a.Dates[i]):
			j++
		default:
			dates = append(dates, a.Dates[i])
			x = append(x, a.Values[i])
			y = append(y, b.Values[j])
			i++
			j++
		}
	}
	return dates, x, y
}

// Diff returns the first differences of the series (value minus previous
// value), indexed at the later date of each pair. Non-finite differences,
// which arise from gaps encoded as Inf/NaN, are dropped.
func (s *Series) Diff() *Series {
	out := &Series{Name: s.Name}
	for i := 1; i < s.Len(); i++ {
		d := s.Values[i] - s.Values[i-1]
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		out.Dates = append(out.Dates, s.Dates[i])
		out.Values = append(out.Values, d)
	}
	return out
}

// Shift moves the values of the series by n time-index steps relative to
// the dates. A positive n moves values forward in time (the value
// observed at index i is re-indexed to the date at i+n); a negative n
// moves them backward. Observations shifted off either end are dropped.
func (s *Series) Shift(n int) *Series {
	out := &Series{Name: s.Name}
	for i := range s.Values {
		j := i + n
		if j < 0 || j >= s.Len() {
			continue
		}
		out.Dates = append(out.Dates, s.Dates[j])
		out.Values = append(out.Values, s.Values[i])
	}
	return out
}

// RollingMean returns the trailing moving average of length window. The
// result is defined from index window-1 onward, so the output is
// window-1 observations shorter than the input.
func (s *Series) RollingMean(window int) *Series {
	out := &Series{Name: s.Name}
	if window <= 0 || s.Len() < window {
		return out
	}

	var sum float64
	for i := 0; i < s.Len(); i++ {
		sum += s.Values[i]
		if i >= window {
			sum -= s.Values[i-window]
		}
		if i >= window-1 {
			out.Dates = append(out.Dates, s.Dates[i])
			out.Values = append(out.Values, sum/float64(window))
		}
	}
	return out
}
