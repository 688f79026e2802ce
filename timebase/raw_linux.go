//go:build linux

package timebase

import (
	"golang.org/x/sys/unix"
)

// Raw reads CLOCK_MONOTONIC_RAW, which is not slewed by
// NTP adjustments.
type Raw struct{}

// NewRaw creates a Raw clock.
func NewRaw() Raw {
	return Raw{}
}

func (Raw) Now() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		panic(err)
	}
	return float64(ts.Sec) + float64(ts.Nsec)*1e-9
}
