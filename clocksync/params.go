package clocksync

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is wrapped by every parameter
// validation error.
var ErrInvalidParams = errors.New("invalid synchronization parameters")

// Params configures the model-based strategies.
type Params struct {
	// WindowSize is the length of one measurement window,
	// in seconds.
	WindowSize float64

	// WaitTime is the delay between the start of a batch
	// and its first window, in seconds.
	WaitTime float64

	// FitPoints is the number of points in the clock drift
	// regression.
	FitPoints int

	// Exchanges is the number of timestamp exchanges that
	// are reduced to one fit point.
	Exchanges int
}

// DefaultParams returns the parameters used when nothing
// is configured.
func DefaultParams() Params {
	return Params{
		WindowSize: 1e-3,
		WaitTime:   1e-3,
		FitPoints:  20,
		Exchanges:  10,
	}
}

// ParamsFromMicros creates Params from window and wait
// times given in microseconds.
func ParamsFromMicros(windowUS, waitUS float64, fitPoints, exchanges int) Params {
	return Params{
		WindowSize: windowUS * 1e-6,
		WaitTime:   waitUS * 1e-6,
		FitPoints:  fitPoints,
		Exchanges:  exchanges,
	}
}

// Validate checks that every field is strictly positive.
func (p Params) Validate() error {
	if !(p.WindowSize > 0) {
		return fmt.Errorf("%w: window size must be positive, got %v", ErrInvalidParams, p.WindowSize)
	}
	if !(p.WaitTime > 0) {
		return fmt.Errorf("%w: wait time must be positive, got %v", ErrInvalidParams, p.WaitTime)
	}
	if p.FitPoints <= 0 {
		return fmt.Errorf("%w: number of fit points must be positive, got %d", ErrInvalidParams,
			p.FitPoints)
	}
	if p.Exchanges <= 0 {
		return fmt.Errorf("%w: number of exchanges must be positive, got %d", ErrInvalidParams,
			p.Exchanges)
	}
	return nil
}

func validateRepetitions(nrep int) error {
	if nrep <= 0 {
		return fmt.Errorf("%w: number of repetitions must be positive, got %d", ErrInvalidParams, nrep)
	}
	return nil
}
