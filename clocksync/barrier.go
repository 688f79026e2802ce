package clocksync

import (
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// barrierSync separates iterations with the group's tree
// barrier and leaves clocks alone.
type barrierSync struct {
	comm   collcomm.Comm
	clk    timebase.Clock
	double bool
}

func (b *barrierSync) clock() timebase.Clock { return b.clk }
func (b *barrierSync) setParams(p Params)    {}
func (b *barrierSync) calibrate()            {}

func (b *barrierSync) normalize(t float64) float64 {
	return t
}

func (b *barrierSync) openBatch() {
	collcomm.Barrier(b.comm)
}

func (b *barrierSync) start() int {
	collcomm.Barrier(b.comm)
	if b.double {
		collcomm.Barrier(b.comm)
	}
	return 0
}

func (b *barrierSync) stop() int {
	return 0
}

func (b *barrierSync) writeInfo(w *infoWriter) {
	w.str("sync", KindBarrier.String())
	if b.double {
		w.str("doublebarrier", "true")
	}
}

// disseminationSync is like barrierSync, but it uses a
// dissemination barrier instead of the tree barrier.
type disseminationSync struct {
	comm   collcomm.Comm
	clk    timebase.Clock
	double bool
}

func (d *disseminationSync) clock() timebase.Clock { return d.clk }
func (d *disseminationSync) setParams(p Params)    {}
func (d *disseminationSync) calibrate()            {}

func (d *disseminationSync) normalize(t float64) float64 {
	return t
}

func (d *disseminationSync) openBatch() {
	DisseminationBarrier(d.comm)
}

func (d *disseminationSync) start() int {
	DisseminationBarrier(d.comm)
	if d.double {
		DisseminationBarrier(d.comm)
	}
	return 0
}

func (d *disseminationSync) stop() int {
	return 0
}

func (d *disseminationSync) writeInfo(w *infoWriter) {
	w.str("sync", KindDissemination.String())
	if d.double {
		w.str("doublebarrier", "true")
	}
}

// DisseminationBarrier blocks until every rank has entered
// it.
//
// In round i, every rank r sends a token to r+2^i and
// receives one from r-2^i (mod the group size), for
// ceil(log2 P) rounds.
func DisseminationBarrier(c collcomm.Comm) {
	rank, size := c.Rank(), c.Size()
	for dist := 1; dist < size; dist *= 2 {
		dst := (rank + dist) % size
		src := (rank - dist + size) % size
		collcomm.Sendrecv(c, dst, src, tagToken, []float64{1})
	}
}
