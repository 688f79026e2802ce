// Package timebase provides the local clocks that
// timestamps are read from.
package timebase

import (
	"fmt"
	"strings"
	"time"
)

// A Clock reads the local time in seconds.
//
// Readings only need to be monotonic and comparable with
// each other; the epoch is arbitrary.
type Clock interface {
	Now() float64
}

// Monotonic reads the Go runtime's monotonic clock as the
// number of seconds since the Monotonic was created.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a Monotonic starting at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) Now() float64 {
	return time.Since(m.start).Seconds()
}

// Adjusted subtracts a fixed start stamp from every reading
// of an underlying clock.
type Adjusted struct {
	Clock Clock
	Start float64
}

// NewAdjusted creates an Adjusted clock that reads zero
// right now.
func NewAdjusted(c Clock) *Adjusted {
	return &Adjusted{Clock: c, Start: c.Now()}
}

func (a *Adjusted) Now() float64 {
	return a.Clock.Now() - a.Start
}

// Clock names accepted by ParseClock.
const (
	NameMonotonic = "monotonic"
	NameRaw       = "raw"
	NameCycles    = "cycles"
)

// ParseClock creates a real-time clock by name.
//
// An empty name selects the monotonic clock.
func ParseClock(name string) (Clock, error) {
	switch strings.ToLower(name) {
	case "", NameMonotonic:
		return NewMonotonic(), nil
	case NameRaw:
		return NewRaw(), nil
	case NameCycles:
		return NewCycles(), nil
	default:
		return nil, fmt.Errorf("unknown clock: %q", name)
	}
}
