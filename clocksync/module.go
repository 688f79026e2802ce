package clocksync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/unixpickle/clockbench/collcomm"
)

type state int

const (
	stateNew state = iota
	stateReady
	stateCalibrated
	stateWindowClosed
	stateWindowOpen
	stateCleanedUp
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "uninitialized"
	case stateReady:
		return "initialized"
	case stateCalibrated:
		return "calibrated"
	case stateWindowClosed:
		return "window closed"
	case stateWindowOpen:
		return "window open"
	case stateCleanedUp:
		return "cleaned up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// A Module is the Strategy returned by New.
//
// It holds the per-job state shared by every Kind: the
// parameters, the iteration counter and the error flags.
type Module struct {
	cfg     Config
	comm    collcomm.Comm
	backend backend

	state   state
	params  Params
	nrep    int
	counter int
	flags   int
	codes   []int
}

// Kind returns the strategy the Module was created for.
func (m *Module) Kind() Kind {
	return m.cfg.Kind
}

// Init validates nrep and, for windowed kinds, the
// parameters, and allocates the per-batch error flags.
// Errors wrap ErrInvalidParams.
func (m *Module) Init(params Params, nrep int) error {
	m.expect("Init", stateNew)
	if err := validateRepetitions(nrep); err != nil {
		return err
	}
	if m.cfg.Kind.Windowed() {
		if err := params.Validate(); err != nil {
			return err
		}
		m.codes = make([]int, nrep)
	}
	m.params = params
	m.nrep = nrep
	m.backend.setParams(params)
	m.state = stateReady
	return nil
}

// SyncClocks runs the calibration protocol of the Kind.
// Every rank must call it.
func (m *Module) SyncClocks() {
	m.expect("SyncClocks", stateReady)
	clock := m.backend.clock()
	start := clock.Now()
	m.backend.calibrate()
	elapsed := clock.Now() - start

	mtrcs := syncMtrcs.Load()
	mtrcs.calibrations.WithLabelValues(m.cfg.Kind.String()).Inc()
	mtrcs.calibrationSeconds.WithLabelValues(m.cfg.Kind.String()).Set(elapsed)

	if m.cfg.Log.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []slog.Attr{
			slog.String("strategy", m.cfg.Kind.String()),
			slog.Int("rank", m.comm.Rank()),
			slog.Float64("duration", elapsed),
		}
		if mb, ok := m.backend.(modeler); ok {
			model := mb.linearModel()
			attrs = append(attrs,
				slog.Float64("slope", model.Slope),
				slog.Float64("intercept", model.Intercept))
		}
		m.cfg.Log.LogAttrs(context.Background(), slog.LevelDebug, "synchronized clocks", attrs...)
	}
	m.state = stateCalibrated
}

// InitSync starts a batch. Windowed kinds agree on the
// first window and clear the previous batch's flags.
func (m *Module) InitSync() {
	m.expect("InitSync", stateCalibrated, stateWindowClosed)
	m.backend.openBatch()
	m.counter = 0
	clear(m.codes)
	m.state = stateWindowClosed
}

// StartSync waits for the next iteration to begin, either
// in a barrier or by spinning until the window opens.
func (m *Module) StartSync() {
	m.expect("StartSync", stateWindowClosed)
	if m.counter >= m.nrep {
		panic(fmt.Sprintf("clocksync: more than %d iterations in one batch", m.nrep))
	}
	m.flags = m.backend.start()
	m.state = stateWindowOpen
}

// StopSync ends the current iteration and records its
// error flags.
func (m *Module) StopSync() {
	m.expect("StopSync", stateWindowOpen)
	flags := m.flags | m.backend.stop()
	if m.codes != nil {
		m.codes[m.counter] = flags
		m.countErrors(flags)
	}
	m.counter++
	m.state = stateWindowClosed
}

func (m *Module) countErrors(flags int) {
	errs := syncMtrcs.Load().windowErrors
	if flags&StartTimeHasPassed != 0 {
		errs.WithLabelValues(m.cfg.Kind.String(), "start_time_passed").Inc()
	}
	if flags&WindowExpired != 0 {
		errs.WithLabelValues(m.cfg.Kind.String(), "window_expired").Inc()
	}
}

// Now reads the strategy's local clock.
func (m *Module) Now() float64 {
	m.expect("Now", stateReady, stateCalibrated, stateWindowClosed, stateWindowOpen)
	return m.backend.clock().Now()
}

// NormalizedTime maps a reading of Now to rank 0's time.
// Barrier kinds return it unchanged.
func (m *Module) NormalizedTime(local float64) float64 {
	m.expect("NormalizedTime", stateCalibrated, stateWindowClosed, stateWindowOpen)
	return m.backend.normalize(local)
}

// ErrorCodes returns the flags of the batch that just
// ended, or nil for barrier kinds.
func (m *Module) ErrorCodes() []int {
	m.expect("ErrorCodes", stateWindowClosed)
	return m.codes
}

// Model returns the calibrated clock model, or the zero
// model for strategies without one.
func (m *Module) Model() LinearModel {
	m.expect("Model", stateCalibrated, stateWindowClosed, stateWindowOpen)
	if mb, ok := m.backend.(modeler); ok {
		return mb.linearModel()
	}
	return LinearModel{}
}

// Cleanup drops the batch state. Any later call other
// than Cleanup panics.
func (m *Module) Cleanup() {
	m.codes = nil
	m.state = stateCleanedUp
}

// WriteInfo writes the "#@key=value" lines describing the
// strategy and its parameters.
func (m *Module) WriteInfo(w io.Writer) error {
	iw := &infoWriter{w: w}
	m.backend.writeInfo(iw)
	return iw.err
}

func (m *Module) expect(op string, states ...state) {
	if !slices.Contains(states, m.state) {
		panic(fmt.Sprintf("clocksync: %s called while %s", op, m.state))
	}
}

type modeler interface {
	linearModel() LinearModel
}
