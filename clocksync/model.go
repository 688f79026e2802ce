package clocksync

import (
	"fmt"
	"strings"
)

// A LinearModel maps a process's local time to its
// estimate of the reference process's time.
//
// The reference process itself uses the zero model.
type LinearModel struct {
	Slope     float64
	Intercept float64
}

// Apply converts a local timestamp to reference time.
func (l LinearModel) Apply(t float64) float64 {
	return t - (t*l.Slope + l.Intercept)
}

// InterceptMode selects how intercepts are obtained by
// the hierarchical strategy.
type InterceptMode int

const (
	// InterceptLinear discards composed intercepts and
	// measures every process's offset to the reference
	// directly once all drift models are known.
	InterceptLinear InterceptMode = iota

	// InterceptLogP measures each offset against the
	// immediate parent in the tree and composes them along
	// with the slopes.
	InterceptLogP
)

func (i InterceptMode) String() string {
	switch i {
	case InterceptLinear:
		return "linear"
	case InterceptLogP:
		return "logp"
	default:
		return fmt.Sprintf("InterceptMode(%d)", int(i))
	}
}

// ParseInterceptMode parses "linear" or "logp".
//
// An empty string selects InterceptLinear.
func ParseInterceptMode(s string) (InterceptMode, error) {
	switch strings.ToLower(s) {
	case "", "linear":
		return InterceptLinear, nil
	case "logp":
		return InterceptLogP, nil
	default:
		return 0, fmt.Errorf("unknown intercept mode: %q", s)
	}
}

// Merge composes a model relative to an intermediate
// process (down) with that process's model relative to
// the reference (up).
//
// The intercept is only composed in InterceptLogP mode;
// otherwise it is zero.
func Merge(up, down LinearModel, mode InterceptMode) LinearModel {
	res := LinearModel{
		Slope: up.Slope + down.Slope - up.Slope*down.Slope,
	}
	if mode == InterceptLogP {
		res.Intercept = up.Intercept + down.Intercept - down.Intercept*up.Slope
	}
	return res
}

func (l LinearModel) vec() []float64 {
	return []float64{l.Slope, l.Intercept}
}

func modelFromVec(v []float64) LinearModel {
	return LinearModel{Slope: v[0], Intercept: v[1]}
}
