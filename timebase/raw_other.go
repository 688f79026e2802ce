//go:build !linux

package timebase

// Raw falls back to the monotonic clock on platforms
// without CLOCK_MONOTONIC_RAW.
type Raw struct {
	*Monotonic
}

// NewRaw creates a Raw clock.
func NewRaw() Raw {
	return Raw{NewMonotonic()}
}
