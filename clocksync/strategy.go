// Package clocksync gives every rank of a process group a
// common notion of time, and schedules measured operations
// into globally agreed windows.
package clocksync

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// Tags used by the calibration protocols.
const (
	tagRTT = iota + 1
	tagLearn
	tagPingPong
	tagModels
	tagToken
	tagWarmup
)

// ErrGroupTooSmall is returned when a pairwise strategy is
// created for a single rank.
var ErrGroupTooSmall = errors.New("strategy needs at least two ranks")

// Kind identifies a synchronization strategy.
type Kind int

const (
	KindBarrier Kind = iota
	KindDissemination
	KindSKaMPI
	KindJK
	KindHCA
)

var kindNames = map[Kind]string{
	KindBarrier:       "MPI_Barrier",
	KindDissemination: "BBarrier",
	KindSKaMPI:        "SKaMPI",
	KindJK:            "JK",
	KindHCA:           "HCA",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind looks up a strategy by its printed name,
// ignoring case.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown synchronization strategy: %q", s)
}

// Windowed reports whether the strategy schedules
// iterations into time windows using a clock model, as
// opposed to separating them with barriers.
func (k Kind) Windowed() bool {
	return k == KindSKaMPI || k == KindJK || k == KindHCA
}

// Config selects and tunes a strategy.
//
// Zero values select the defaults.
type Config struct {
	Kind Kind

	// DoubleBarrier makes barrier strategies run two
	// barriers before every iteration.
	DoubleBarrier bool

	// Intercept selects how HCA obtains intercepts.
	Intercept InterceptMode

	RTTSamples    int
	OutlierFactor float64
	LatencyShare  float64

	Log *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.RTTSamples == 0 {
		c.RTTSamples = DefaultRTTSamples
	} else if c.RTTSamples < 0 {
		return c, fmt.Errorf("%w: negative RTT sample count %d", ErrInvalidParams, c.RTTSamples)
	}
	if c.OutlierFactor == 0 {
		c.OutlierFactor = DefaultOutlierFactor
	} else if !(c.OutlierFactor > 0) {
		return c, fmt.Errorf("%w: outlier factor must be positive, got %v", ErrInvalidParams,
			c.OutlierFactor)
	}
	if c.LatencyShare == 0 {
		c.LatencyShare = DefaultLatencyShare
	} else if !(c.LatencyShare > 0 && c.LatencyShare <= 1) {
		return c, fmt.Errorf("%w: latency share must be in (0, 1], got %v", ErrInvalidParams,
			c.LatencyShare)
	}
	if c.Intercept != InterceptLinear && c.Intercept != InterceptLogP {
		return c, fmt.Errorf("%w: %v", ErrInvalidParams, c.Intercept)
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c, nil
}

// A Strategy drives one job's synchronization.
//
// The operations must be called in this order:
//
//	Init(params, nrep)
//	SyncClocks()
//	for each batch {
//	    InitSync()
//	    nrep times: StartSync(), <operation>, StopSync()
//	    ErrorCodes()
//	}
//	Cleanup()
//
// Calling them out of order panics.
type Strategy interface {
	// Init validates the parameters and prepares for
	// batches of nrep iterations.
	Init(params Params, nrep int) error

	// SyncClocks runs the one-time calibration.
	SyncClocks()

	// InitSync opens a new batch.
	InitSync()

	StartSync()
	StopSync()

	// Now reads the clock that timestamps passed to
	// NormalizedTime must come from.
	Now() float64

	// NormalizedTime converts a local timestamp to the
	// reference rank's time.
	NormalizedTime(local float64) float64

	// ErrorCodes returns the flags of the current batch,
	// indexed by iteration.
	// It is nil for strategies that do not use windows.
	//
	// The slice is owned by the Strategy and is only valid
	// until the next InitSync or Cleanup.
	ErrorCodes() []int

	// Cleanup releases the batch state.
	// It may be called more than once.
	Cleanup()

	// WriteInfo writes the strategy's "#@key=value" lines.
	WriteInfo(w io.Writer) error

	Kind() Kind
}

// New creates a Strategy for one rank.
//
// The clock is the rank's raw local time source.
func New(cfg Config, comm collcomm.Comm, clock timebase.Clock) (Strategy, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.Kind.Windowed() && comm.Size() < 2 {
		return nil, fmt.Errorf("%s: %w", cfg.Kind, ErrGroupTooSmall)
	}
	var b backend
	switch cfg.Kind {
	case KindBarrier:
		b = &barrierSync{comm: comm, clk: clock, double: cfg.DoubleBarrier}
	case KindDissemination:
		b = &disseminationSync{comm: comm, clk: clock, double: cfg.DoubleBarrier}
	case KindSKaMPI:
		b = newSKaMPISync(cfg, comm, clock)
	case KindJK:
		b = newJKSync(cfg, comm, clock)
	case KindHCA:
		b = newHCASync(cfg, comm, clock)
	default:
		return nil, fmt.Errorf("unknown synchronization strategy: %v", cfg.Kind)
	}
	return &Module{cfg: cfg, comm: comm, backend: b}, nil
}

// A backend is the protocol of one Kind, without the
// lifecycle bookkeeping shared by all of them.
type backend interface {
	clock() timebase.Clock
	setParams(p Params)
	calibrate()
	normalize(t float64) float64

	openBatch()

	// start and stop bracket one iteration and return the
	// error flags it raised.
	start() int
	stop() int

	writeInfo(w *infoWriter)
}
