// Package runtimes turns the start and end timestamps that
// every rank takes around an operation into one duration
// per iteration.
package runtimes

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/unixpickle/clockbench/base/stats"
	"github.com/unixpickle/clockbench/collcomm"
)

// ReduceOp combines the local durations of all ranks.
type ReduceOp int

const (
	OpMax ReduceOp = iota
	OpMin
	OpMean
)

func (r ReduceOp) String() string {
	switch r {
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	case OpMean:
		return "mean"
	default:
		return fmt.Sprintf("ReduceOp(%d)", int(r))
	}
}

// ParseReduceOp parses "max", "min" or "mean".
//
// An empty string selects OpMax.
func ParseReduceOp(s string) (ReduceOp, error) {
	switch strings.ToLower(s) {
	case "", "max":
		return OpMax, nil
	case "min":
		return OpMin, nil
	case "mean", "avg":
		return OpMean, nil
	default:
		return 0, fmt.Errorf("unknown reduction: %q", s)
	}
}

// Local computes every rank's local durations and reduces
// them across the group with op.
//
// The result is returned on root; other ranks get nil.
func Local(c collcomm.Comm, root int, tstart, tend []float64, op ReduceOp) []float64 {
	durations := make([]float64, len(tstart))
	for i := range durations {
		durations[i] = tend[i] - tstart[i]
	}
	var fn collcomm.ReduceFn
	switch op {
	case OpMax:
		fn = collcomm.Max
	case OpMin:
		fn = collcomm.Min
	case OpMean:
		fn = collcomm.Sum
	default:
		panic(fmt.Sprintf("unknown reduction: %v", op))
	}
	res := collcomm.Reduce(c, root, durations, fn)
	if res != nil && op == OpMean {
		for i := range res {
			res[i] /= float64(c.Size())
		}
	}
	return res
}

// Global converts the timestamps to global time and
// measures every iteration from the earliest start to the
// latest end on any rank.
//
// The combined error code of an iteration is the largest
// code any rank reported for it.
// A nil codes slice counts as all zeros.
//
// The results are returned on root; other ranks get nil.
func Global(c collcomm.Comm, root int, tstart, tend []float64, codes []int,
	normalize func(float64) float64) (runtimes []float64, combined []int) {
	n := len(tstart)
	starts := make([]float64, n)
	ends := make([]float64, n)
	flags := make([]float64, n)
	for i := range starts {
		starts[i] = normalize(tstart[i])
		ends[i] = normalize(tend[i])
		if codes != nil {
			flags[i] = float64(codes[i])
		}
	}

	flags = collcomm.Reduce(c, root, flags, collcomm.Max)
	starts = collcomm.Reduce(c, root, starts, collcomm.Min)
	ends = collcomm.Reduce(c, root, ends, collcomm.Max)
	if c.Rank() != root {
		return nil, nil
	}

	runtimes = make([]float64, n)
	combined = make([]int, n)
	for i := range runtimes {
		runtimes[i] = ends[i] - starts[i]
		combined[i] = int(flags[i])
	}
	return runtimes, combined
}

// Compact keeps the runtimes whose error code is zero, in
// their original order.
//
// A nil codes slice keeps everything.
func Compact(runtimes []float64, codes []int) []float64 {
	res := make([]float64, 0, len(runtimes))
	for i, r := range runtimes {
		if codes == nil || codes[i] == 0 {
			res = append(res, r)
		}
	}
	return res
}

// A Summary describes a set of valid runtimes.
type Summary struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
}

// Summarize computes a Summary.
//
// Every field is NaN when there are no runtimes.
func Summarize(runtimes []float64) Summary {
	if len(runtimes) == 0 {
		nan := math.NaN()
		return Summary{Mean: nan, Median: nan, Min: nan, Max: nan}
	}
	sorted := slices.Clone(runtimes)
	slices.Sort(sorted)
	return Summary{
		Mean:   stats.Mean(sorted),
		Median: stats.MedianSorted(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}
