package clocksync

import (
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// Error flags of one iteration.
const (
	// StartTimeHasPassed is set when a rank reached
	// StartSync after its window had already begun.
	StartTimeHasPassed = 0x1

	// WindowExpired is set when a rank reached StopSync
	// after its window had ended.
	WindowExpired = 0x2
)

// A window schedules iterations into consecutive slots of
// global time.
type window struct {
	size float64
	wait float64

	// now reads the current global time.
	now func() float64

	start float64
}

// open agrees on the start of the first window: wait
// seconds after the reference rank's current time.
func (w *window) open(comm collcomm.Comm) {
	var msg []float64
	if comm.Rank() == 0 {
		msg = []float64{w.now() + w.wait}
	}
	w.start = collcomm.Bcast(comm, 0, msg)[0]
}

// begin spins until the current window starts.
//
// This never yields to the scheduler, so the wake-up is as
// close to the window start as the clock allows.
func (w *window) begin() int {
	for first := true; ; first = false {
		if w.now() >= w.start {
			if first {
				return StartTimeHasPassed
			}
			return 0
		}
	}
}

// end closes the current window and advances to the next.
func (w *window) end() int {
	var flags int
	if w.now() > w.start+w.size {
		flags = WindowExpired
	}
	w.start += w.size
	return flags
}

// modelSync is the part shared by the windowed strategies:
// a clock, the model that maps it to global time, and the
// window schedule on top of both.
type modelSync struct {
	comm   collcomm.Comm
	clk    timebase.Clock
	model  LinearModel
	params Params
	win    window
}

func (m *modelSync) bind(comm collcomm.Comm, clock timebase.Clock) {
	m.comm = comm
	m.clk = clock
	m.win.now = m.globalNow
}

func (m *modelSync) globalNow() float64 {
	return m.model.Apply(m.clk.Now())
}

func (m *modelSync) clock() timebase.Clock {
	return m.clk
}

func (m *modelSync) setParams(p Params) {
	m.params = p
	m.win.size = p.WindowSize
	m.win.wait = p.WaitTime
}

func (m *modelSync) normalize(t float64) float64 {
	return m.model.Apply(t)
}

func (m *modelSync) linearModel() LinearModel {
	return m.model
}

func (m *modelSync) openBatch() {
	m.win.open(m.comm)
}

func (m *modelSync) start() int {
	return m.win.begin()
}

func (m *modelSync) stop() int {
	return m.win.end()
}

func (m *modelSync) writeWindowInfo(w *infoWriter) {
	w.float("window_s", m.params.WindowSize)
}
