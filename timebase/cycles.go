package timebase

import (
	"slices"
	"time"
)

const (
	cycleCalibrations = 5
	cycleCalibration  = 10 * time.Millisecond
)

// Cycles reads the CPU's cycle counter and converts it to
// seconds since the Cycles was created.
//
// The counter frequency is calibrated against the raw
// monotonic clock when the Cycles is created. On platforms
// without a readable counter, a nanosecond counter stands
// in for it.
type Cycles struct {
	start uint64
	freq  float64
}

// NewCycles calibrates the cycle counter and creates a
// clock starting at zero.
//
// Calibration sleeps for about 50ms.
func NewCycles() *Cycles {
	return &Cycles{start: readCycles(), freq: calibrateCycles(NewRaw())}
}

func (c *Cycles) Now() float64 {
	return float64(readCycles()-c.start) / c.freq
}

// Frequency returns the calibrated counter frequency in Hz.
func (c *Cycles) Frequency() float64 {
	return c.freq
}

func calibrateCycles(ref Clock) float64 {
	freqs := make([]float64, cycleCalibrations)
	for i := range freqs {
		startTime, start := ref.Now(), readCycles()
		time.Sleep(cycleCalibration)
		endTime, end := ref.Now(), readCycles()
		freqs[i] = float64(end-start) / (endTime - startTime)
	}
	slices.Sort(freqs)
	return freqs[len(freqs)/2]
}
