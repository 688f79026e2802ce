package simulator

// A DriftClock is a simulated machine clock.
//
// At virtual time T it reads Offset + T*(1+Drift).
// Every read costs ReadCost of virtual time, which keeps a
// Goroutine that spins on the clock from stalling the
// EventLoop.
type DriftClock struct {
	Handle   *Handle
	Offset   float64
	Drift    float64
	ReadCost float64
}

// Now reads the clock, charging ReadCost.
func (d *DriftClock) Now() float64 {
	if d.ReadCost > 0 {
		d.Handle.Sleep(d.ReadCost)
	}
	return d.At(d.Handle.Time())
}

// At computes the reading the clock would show at virtual
// time t, without advancing time.
func (d *DriftClock) At(t float64) float64 {
	return d.Offset + t*(1+d.Drift)
}

// ClockSpec describes a simulated clock independently of
// the Handle that will read it.
type ClockSpec struct {
	Offset   float64
	Drift    float64
	ReadCost float64
}

// RandomClocks creates n clock specs with offsets drawn
// uniformly from [-maxOffset, maxOffset] and drifts from
// [-maxDrift, maxDrift].
func RandomClocks(loop *EventLoop, n int, maxOffset, maxDrift, readCost float64) []ClockSpec {
	res := make([]ClockSpec, n)
	for i := range res {
		res[i].ReadCost = readCost
		res[i].Offset = (loop.Float64()*2 - 1) * maxOffset
		res[i].Drift = (loop.Float64()*2 - 1) * maxDrift
	}
	return res
}

// Bind attaches the spec to a Handle.
func (c ClockSpec) Bind(h *Handle) *DriftClock {
	return &DriftClock{
		Handle:   h,
		Offset:   c.Offset,
		Drift:    c.Drift,
		ReadCost: c.ReadCost,
	}
}
