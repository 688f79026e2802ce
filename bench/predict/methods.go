package predict

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/unixpickle/clockbench/base/stats"
)

// A Method decides from the runtimes measured so far
// whether more repetitions are needed.
type Method int

const (
	// RSE is the relative standard error of the mean, after
	// dropping outliers once there are enough samples.
	RSE Method = iota

	// CovMean is the coefficient of variation of the means
	// of the last Window prefixes of the runtimes.
	CovMean

	// CovMedian is like CovMean, but with medians.
	CovMedian
)

const (
	// Runtimes more than outlierFactor inter-quartile ranges
	// outside the quartiles are ignored by RSE.
	outlierFactor = 1.5

	// RSE only drops outliers from more samples than this.
	outlierMinSamples = 10
)

var methodNames = []string{
	RSE:       "rse",
	CovMean:   "cov_mean",
	CovMedian: "cov_median",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod parses the name of a Method.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if strings.EqualFold(s, name) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unknown prediction method %q (expected one of %v)", s, methodNames)
}

// Value computes the method's statistic for a sequence of
// runtimes, in measurement order.
//
// The second result is false when there are too few
// runtimes for the statistic.
func (m Method) Value(runtimes []float64, window int) (float64, bool) {
	switch m {
	case RSE:
		return relativeStdErr(runtimes)
	case CovMean:
		return prefixCoV(runtimes, window, func(sorted []float64) float64 {
			return stat.Mean(sorted, nil)
		})
	case CovMedian:
		return prefixCoV(runtimes, window, stats.MedianSorted)
	default:
		panic(fmt.Sprintf("unknown method: %d", int(m)))
	}
}

func relativeStdErr(runtimes []float64) (float64, bool) {
	if len(runtimes) < 2 {
		return 0, false
	}
	sorted := slices.Clone(runtimes)
	slices.Sort(sorted)
	if len(sorted) > outlierMinSamples {
		sorted = dropOutliers(sorted)
	}
	mean, std := stat.MeanStdDev(sorted, nil)
	return std / (math.Sqrt(float64(len(sorted))) * mean), true
}

// dropOutliers trims sorted data to the values within the
// outlier fences.
func dropOutliers(sorted []float64) []float64 {
	q1 := stats.QuantileSorted(sorted, 0.25)
	q3 := stats.QuantileSorted(sorted, 0.75)
	lower := q1 - (q3-q1)*outlierFactor
	upper := q3 + (q3-q1)*outlierFactor

	start, end := 0, 0
	for i, x := range sorted {
		if x >= lower {
			start = i
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= upper {
			end = i
			break
		}
	}
	return sorted[start : end+1]
}

// prefixCoV applies center to the window longest prefixes
// of runtimes and returns the coefficient of variation of
// the results.
func prefixCoV(runtimes []float64, window int, center func(sorted []float64) float64) (float64, bool) {
	if window < 1 || window > len(runtimes) {
		return 0, false
	}
	centers := make([]float64, window)
	prefix := make([]float64, len(runtimes))
	for i := range centers {
		n := len(runtimes) - i
		copy(prefix, runtimes[:n])
		slices.Sort(prefix[:n])
		centers[i] = center(prefix[:n])
	}
	mean, std := stat.MeanStdDev(centers, nil)
	return std / mean, true
}
