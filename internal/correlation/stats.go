package correlation

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Pearson computes the Pearson correlation coefficient of two equal
// length samples. Returns ErrInsufficientData for samples shorter than
// two, and ErrDegenerateStatistics when either sample has zero variance.
func Pearson(x, y []float64) (float64, error) {
	if len(x) < 2 || len(x) != len(y) {
		return 0, ErrInsufficientData
	}
	if constant(x) || constant(y) {
		return 0, ErrDegenerateStatistics
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, ErrDegenerateStatistics
	}
	return r, nil
}

// PValue computes the two-sided p-value for a Pearson coefficient r
// observed on a sample of size n, under the null hypothesis of no
// correlation: t = r*sqrt((n-2)/(1-r²)) against Student's t with n-2
// degrees of freedom.
func PValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}

	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return 2 * dist.CDF(-math.Abs(t))
}

func constant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}
