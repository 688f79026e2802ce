// Package stats implements the order statistics used when
// filtering timing samples.
//
// Quantiles follow the GSL convention: the q-quantile of n
// sorted values interpolates linearly at index q*(n-1).
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// QuantileSorted computes the q-quantile of sorted data.
//
// It returns NaN for empty data.
func QuantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	index := q * float64(n-1)
	lhs := int(math.Floor(index))
	delta := index - float64(lhs)
	if lhs >= n-1 {
		return sorted[n-1]
	}
	if lhs < 0 {
		return sorted[0]
	}
	return (1-delta)*sorted[lhs] + delta*sorted[lhs+1]
}

// MedianSorted computes the median of sorted data,
// averaging the two middle values for even lengths.
func MedianSorted(sorted []float64) float64 {
	return QuantileSorted(sorted, 0.5)
}

// Mean computes the arithmetic mean.
//
// It returns NaN for empty data.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return stat.Mean(data, nil)
}

// LinearFit computes the ordinary least-squares line
// y = intercept + slope*x.
func LinearFit(x, y []float64) (intercept, slope float64) {
	return stat.LinearRegression(x, y, nil, false)
}
