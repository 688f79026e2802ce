package clocksync

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/unixpickle/clockbench/base/stats"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/simulator"
)

func TestFilteredMean(t *testing.T) {
	t.Run("Outlier", func(t *testing.T) {
		actual := FilteredMean([]float64{1, 100, 1, 1, 1}, DefaultOutlierFactor)
		if actual != 1 {
			t.Errorf("expected 1 but got %f", actual)
		}
	})
	t.Run("Random", func(t *testing.T) {
		gen := rand.New(rand.NewSource(1337))
		for i := 0; i < 100; i++ {
			samples := make([]float64, gen.Intn(50)+1)
			for j := range samples {
				samples[j] = gen.ExpFloat64()
				if gen.Intn(10) == 0 {
					samples[j] *= 50
				}
			}
			sorted := slices.Clone(samples)
			slices.Sort(sorted)
			cutoff := DefaultOutlierFactor * stats.QuantileSorted(sorted, rttUpperQuantile)

			var kept []float64
			for _, s := range sorted {
				if s <= cutoff {
					kept = append(kept, s)
				}
			}
			mean := FilteredMean(samples, DefaultOutlierFactor)
			if mean > sorted[len(sorted)-1] {
				t.Fatalf("mean %f exceeds maximum %f", mean, sorted[len(sorted)-1])
			}
			if expected := stats.Mean(kept); math.Abs(mean-expected) > 1e-9 {
				t.Fatalf("expected mean %f but got %f", expected, mean)
			}
		}
	})
}

func TestRTTEstimator(t *testing.T) {
	loop := simulator.NewEventLoopSeed(1)
	network := simulator.NewOrderedNetwork(1e-6, 0, 0)
	clocks := []simulator.ClockSpec{{Offset: 3}, {Offset: -2}, {Offset: 1}}
	results := make([]float64, len(clocks))
	collcomm.SpawnSim(loop, network, clocks, func(c *collcomm.SimComm) {
		r := &RTTEstimator{
			Comm:          c,
			Clock:         c.Clock,
			Samples:       20,
			OutlierFactor: DefaultOutlierFactor,
		}
		if c.Rank() != 2 {
			results[c.Rank()] = r.Estimate(0, 1)
		}
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	for i, actual := range results[:2] {
		if math.Abs(actual-2e-6) > 1e-12 {
			t.Errorf("rank %d: expected RTT 2e-6 but got %e", i, actual)
		}
	}
}
