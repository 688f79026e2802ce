package clocksync

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/unixpickle/clockbench/base/stats"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

const (
	rttWarmupRounds = 5

	// DefaultRTTSamples is the number of timed round trips
	// per estimate.
	DefaultRTTSamples = 1000

	// DefaultOutlierFactor scales the upper quartile of the
	// RTT samples into the outlier cutoff.
	DefaultOutlierFactor = 1.5

	rttUpperQuantile = 0.75
)

// An RTTEstimator measures the round-trip time between two
// ranks with upper outliers removed.
type RTTEstimator struct {
	Comm  collcomm.Comm
	Clock timebase.Clock
	Log   *slog.Logger

	Samples       int
	OutlierFactor float64
}

// Estimate runs the ping-pong between root and other and
// returns the filtered mean round-trip time in seconds.
//
// Both ranks must call Estimate with the same arguments;
// both get the root's estimate.
// No other rank may call it.
func (r *RTTEstimator) Estimate(root, other int) float64 {
	rtt := r.EstimateAtRoot(root, other)
	if r.Comm.Rank() == root {
		r.Comm.Send(other, tagRTT, []float64{rtt})
		return rtt
	}
	return r.Comm.Recv(root, tagRTT)[0]
}

// EstimateAtRoot is like Estimate, but the estimate is
// only known to root.
// The other rank gets NaN.
func (r *RTTEstimator) EstimateAtRoot(root, other int) float64 {
	rank := r.Comm.Rank()
	if rank == root {
		for i := 0; i < rttWarmupRounds; i++ {
			r.Comm.Send(other, tagRTT, []float64{r.Clock.Now()})
			r.Comm.Recv(other, tagRTT)
		}
		samples := make([]float64, r.Samples)
		for i := range samples {
			tstart := r.Clock.Now()
			r.Comm.Send(other, tagRTT, []float64{tstart})
			r.Comm.Recv(other, tagRTT)
			samples[i] = r.Clock.Now() - tstart
		}
		mean := FilteredMean(samples, r.OutlierFactor)
		r.logSamples(other, samples, mean)
		return mean
	} else if rank == other {
		for i := 0; i < rttWarmupRounds+r.Samples; i++ {
			r.Comm.Recv(root, tagRTT)
			r.Comm.Send(root, tagRTT, []float64{r.Clock.Now()})
		}
		return math.NaN()
	}
	panic("rank does not take part in the RTT estimate")
}

func (r *RTTEstimator) logSamples(other int, samples []float64, mean float64) {
	syncMtrcs.Load().rtt.Set(mean)

	ctx := context.Background()
	if r.Log == nil || !r.Log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	hg := hdrhistogram.New(1, 1e9, 3)
	for _, s := range samples {
		_ = hg.RecordValue(int64(s * 1e9))
	}
	r.Log.LogAttrs(ctx, slog.LevelDebug, "estimated round-trip time",
		slog.Int("peer", other),
		slog.Float64("mean", mean),
		slog.Int64("p50_ns", hg.ValueAtQuantile(50)),
		slog.Int64("p90_ns", hg.ValueAtQuantile(90)),
		slog.Int64("p99_ns", hg.ValueAtQuantile(99)),
		slog.Int64("max_ns", hg.Max()),
	)
}

// FilteredMean sorts a copy of the samples, drops every
// value above factor times the upper quartile, and returns
// the mean of what is left.
//
// If every sample is an outlier, the result is NaN.
func FilteredMean(samples []float64, factor float64) float64 {
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	cutoff := factor * stats.QuantileSorted(sorted, rttUpperQuantile)
	n := 0
	for n < len(sorted) && sorted[n] <= cutoff {
		n++
	}
	return stats.Mean(sorted[:n])
}
