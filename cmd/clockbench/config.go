package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/unixpickle/clockbench/base/logbase"
	"github.com/unixpickle/clockbench/bench"
	"github.com/unixpickle/clockbench/bench/predict"
	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/runtimes"
	"github.com/unixpickle/clockbench/simulator"
	"github.com/unixpickle/clockbench/timebase"
)

const (
	defaultKind      = "HCA"
	defaultNRep      = 100
	defaultRanks     = 4
	defaultLatency   = 1e-6
	defaultRate      = 1e9
	defaultReadCost  = 1e-8
	defaultDriftStep = 1.0

	defaultPredictNRep = 10

	defaultDialTimeout = 30 * time.Second
)

type benchConfig struct {
	Sync    syncSection    `toml:"sync,omitempty"`
	Bench   benchSection   `toml:"bench,omitempty"`
	Sim     simSection     `toml:"sim,omitempty"`
	Net     netSection     `toml:"net,omitempty"`
	Clock   clockSection   `toml:"clock,omitempty"`
	Metrics metricsSection `toml:"metrics,omitempty"`
	Drift   driftSection   `toml:"drift,omitempty"`
	Predict predictSection `toml:"predict,omitempty"`
}

type syncSection struct {
	Kind          string   `toml:"kind,omitempty"`
	// Unset parameters take their defaults; explicit
	// values must be positive.
	WindowUS      *float64 `toml:"window_us,omitempty"`
	WaitUS        *float64 `toml:"wait_us,omitempty"`
	FitPoints     *int     `toml:"fitpoints,omitempty"`
	Exchanges     *int     `toml:"exchanges,omitempty"`
	DoubleBarrier bool     `toml:"double_barrier,omitempty"`
	HCAIntercept  string   `toml:"hca_intercept,omitempty"`
	RTTSamples    int      `toml:"rtt_samples,omitempty"`
	OutlierFactor float64  `toml:"outlier_factor,omitempty"`
	LatencyShare  float64  `toml:"latency_share,omitempty"`
}

type benchSection struct {
	Ops     []string `toml:"ops,omitempty"`
	MsgSize []int    `toml:"msize,omitempty"`
	NRep    int      `toml:"nrep,omitempty"`
	Batches int      `toml:"batches,omitempty"`
	Reduce  string   `toml:"reduce,omitempty"`
	Summary bool     `toml:"summary,omitempty"`
}

// simSection also sets the number of ranks of the local
// subcommand.
type simSection struct {
	Ranks     int     `toml:"ranks,omitempty"`
	Latency   float64 `toml:"latency,omitempty"`
	Jitter    float64 `toml:"jitter,omitempty"`
	Rate      float64 `toml:"rate,omitempty"`
	MaxOffset float64 `toml:"max_offset,omitempty"`
	MaxDrift  float64 `toml:"max_drift,omitempty"`
	ReadCost  float64 `toml:"read_cost,omitempty"`
	Seed      int64   `toml:"seed,omitempty"`
}

type netSection struct {
	Addrs       []string `toml:"addrs,omitempty"`
	DialTimeout float64  `toml:"dial_timeout,omitempty"`
}

type clockSection struct {
	Name string `toml:"name,omitempty"`
}

type metricsSection struct {
	Addr string `toml:"addr,omitempty"`
}

type driftSection struct {
	Steps    int     `toml:"steps,omitempty"`
	StepWait float64 `toml:"step_wait,omitempty"`
	NRep     int     `toml:"nrep,omitempty"`
}

// predictSection enables nrep prediction when Methods is
// non-empty. Thresholds and Windows are parallel to Methods.
type predictSection struct {
	Methods    []string  `toml:"methods,omitempty"`
	Thresholds []float64 `toml:"thresholds,omitempty"`
	Windows    []int     `toml:"windows,omitempty"`
	MinNRep    int       `toml:"nrep_min,omitempty"`
	MaxNRep    int       `toml:"nrep_max,omitempty"`
	Stride     int       `toml:"nrep_stride,omitempty"`
}

func loadConfig(configFile string) benchConfig {
	var cfg benchConfig
	if configFile == "" {
		return cfg
	}
	raw, err := os.ReadFile(configFile)
	if err != nil {
		logbase.Fatal(slog.Default(), "failed to load configuration", slog.Any("error", err))
	}
	err = toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		logbase.Fatal(slog.Default(), "failed to decode configuration", slog.Any("error", err))
	}
	return cfg
}

// validateConfig reports configuration errors before any
// rank starts communicating.
func validateConfig(cfg benchConfig) {
	syncParams(cfg)
	strategyConfig(cfg, slog.Default())
	jobs(cfg)
	reduceOp(cfg)
	predictConfig(cfg)
}

func syncParams(cfg benchConfig) clocksync.Params {
	p, err := parseSyncParams(cfg.Sync)
	if err != nil {
		logbase.Fatal(slog.Default(), "invalid synchronization parameters specified in config",
			slog.Any("error", err))
	}
	return p
}

func parseSyncParams(sc syncSection) (clocksync.Params, error) {
	def := clocksync.DefaultParams()
	windowUS, waitUS := def.WindowSize*1e6, def.WaitTime*1e6
	fitPoints, exchanges := def.FitPoints, def.Exchanges
	if sc.WindowUS != nil {
		windowUS = *sc.WindowUS
	}
	if sc.WaitUS != nil {
		waitUS = *sc.WaitUS
	}
	if sc.FitPoints != nil {
		fitPoints = *sc.FitPoints
	}
	if sc.Exchanges != nil {
		exchanges = *sc.Exchanges
	}
	p := clocksync.ParamsFromMicros(windowUS, waitUS, fitPoints, exchanges)
	return p, p.Validate()
}

func strategyConfig(cfg benchConfig, log *slog.Logger) clocksync.Config {
	name := cfg.Sync.Kind
	if name == "" {
		name = defaultKind
	}
	kind, err := clocksync.ParseKind(name)
	if err != nil {
		logbase.Fatal(slog.Default(), "invalid synchronization strategy specified in config",
			slog.Any("error", err))
	}
	intercept := clocksync.InterceptLinear
	if cfg.Sync.HCAIntercept != "" {
		intercept, err = clocksync.ParseInterceptMode(cfg.Sync.HCAIntercept)
		if err != nil {
			logbase.Fatal(slog.Default(), "invalid HCA intercept mode specified in config",
				slog.Any("error", err))
		}
	}
	return clocksync.Config{
		Kind:          kind,
		DoubleBarrier: cfg.Sync.DoubleBarrier,
		Intercept:     intercept,
		RTTSamples:    cfg.Sync.RTTSamples,
		OutlierFactor: cfg.Sync.OutlierFactor,
		LatencyShare:  cfg.Sync.LatencyShare,
		Log:           log,
	}
}

func jobs(cfg benchConfig) []bench.Job {
	names := cfg.Bench.Ops
	if len(names) == 0 {
		names = []string{"barrier"}
	}
	sizes := cfg.Bench.MsgSize
	if len(sizes) == 0 {
		sizes = []int{1}
	}
	nrep := cfg.Bench.NRep
	if nrep == 0 {
		nrep = defaultNRep
	}
	batches := cfg.Bench.Batches
	if batches == 0 {
		batches = 1
	}
	if nrep < 0 || batches < 0 {
		logbase.Fatal(slog.Default(), "invalid repetition count specified in config",
			slog.Int("nrep", nrep), slog.Int("batches", batches))
	}

	var res []bench.Job
	for _, name := range names {
		op, err := bench.LookupOp(name)
		if err != nil {
			logbase.Fatal(slog.Default(), "invalid operation specified in config",
				slog.Any("error", err), slog.Any("known", bench.OpNames()))
		}
		for _, size := range sizes {
			if size < 0 {
				logbase.Fatal(slog.Default(), "invalid message size specified in config",
					slog.Int("msize", size))
			}
			res = append(res, bench.Job{
				Name:    name,
				Op:      op,
				MsgSize: size,
				NRep:    nrep,
				Batches: batches,
			})
		}
	}
	return res
}

func reduceOp(cfg benchConfig) runtimes.ReduceOp {
	if cfg.Bench.Reduce == "" {
		return runtimes.OpMax
	}
	op, err := runtimes.ParseReduceOp(cfg.Bench.Reduce)
	if err != nil {
		logbase.Fatal(slog.Default(), "invalid reduce operation specified in config",
			slog.Any("error", err))
	}
	return op
}

func clockName(cfg benchConfig) string {
	if cfg.Clock.Name == "" {
		return timebase.NameMonotonic
	}
	return cfg.Clock.Name
}

func localClock(cfg benchConfig) timebase.Clock {
	clk, err := timebase.ParseClock(clockName(cfg))
	if err != nil {
		logbase.Fatal(slog.Default(), "invalid clock specified in config", slog.Any("error", err))
	}
	return clk
}

func numRanks(cfg benchConfig) int {
	switch {
	case cfg.Sim.Ranks == 0:
		return defaultRanks
	case cfg.Sim.Ranks < 0:
		logbase.Fatal(slog.Default(), "invalid number of ranks specified in config",
			slog.Int("ranks", cfg.Sim.Ranks))
	}
	return cfg.Sim.Ranks
}

func simNetwork(cfg benchConfig) *simulator.OrderedNetwork {
	latency, rate := cfg.Sim.Latency, cfg.Sim.Rate
	if latency == 0 {
		latency = defaultLatency
	}
	if rate == 0 {
		rate = defaultRate
	}
	if latency < 0 || rate < 0 || cfg.Sim.Jitter < 0 || cfg.Sim.Jitter > latency {
		logbase.Fatal(slog.Default(), "invalid network parameters specified in config",
			slog.Float64("latency", latency), slog.Float64("jitter", cfg.Sim.Jitter),
			slog.Float64("rate", rate))
	}
	return simulator.NewOrderedNetwork(latency, cfg.Sim.Jitter, rate)
}

func simClocks(cfg benchConfig, loop *simulator.EventLoop) []simulator.ClockSpec {
	readCost := cfg.Sim.ReadCost
	if readCost == 0 {
		readCost = defaultReadCost
	}
	if readCost < 0 || cfg.Sim.MaxOffset < 0 || cfg.Sim.MaxDrift < 0 {
		logbase.Fatal(slog.Default(), "invalid clock parameters specified in config")
	}
	return simulator.RandomClocks(loop, numRanks(cfg), cfg.Sim.MaxOffset, cfg.Sim.MaxDrift, readCost)
}

func rankAddrs(cfg benchConfig, rank int) []string {
	if len(cfg.Net.Addrs) < 1 {
		logbase.Fatal(slog.Default(), "addrs not specified in config")
	}
	if rank < 0 || rank >= len(cfg.Net.Addrs) {
		logbase.Fatal(slog.Default(), "rank out of range", slog.Int("rank", rank),
			slog.Int("ranks", len(cfg.Net.Addrs)))
	}
	return cfg.Net.Addrs
}

func dialTimeout(cfg benchConfig) time.Duration {
	if cfg.Net.DialTimeout == 0 {
		return defaultDialTimeout
	}
	if cfg.Net.DialTimeout < 0 {
		logbase.Fatal(slog.Default(), "invalid dial timeout specified in config")
	}
	return time.Duration(cfg.Net.DialTimeout * float64(time.Second))
}

// predictConfig returns the prediction settings, or nil if
// jobs run a fixed number of repetitions.
func predictConfig(cfg benchConfig) *predict.Config {
	if len(cfg.Predict.Methods) == 0 {
		return nil
	}
	p, err := parsePredictConfig(cfg.Predict)
	if err != nil {
		logbase.Fatal(slog.Default(), "invalid prediction parameters specified in config",
			slog.Any("error", err))
	}
	return &p
}

func parsePredictConfig(ps predictSection) (predict.Config, error) {
	p := predict.Config{MinNRep: ps.MinNRep, MaxNRep: ps.MaxNRep, Stride: ps.Stride}
	if p.MinNRep == 0 {
		p.MinNRep = defaultPredictNRep
	}
	if p.Stride == 0 {
		p.Stride = p.MinNRep
	}
	if len(ps.Thresholds) > len(ps.Methods) || len(ps.Windows) > len(ps.Methods) {
		return p, fmt.Errorf("%w: more thresholds or windows than methods", predict.ErrInvalidConfig)
	}
	for i, name := range ps.Methods {
		m, err := predict.ParseMethod(name)
		if err != nil {
			return p, fmt.Errorf("%w: %w", predict.ErrInvalidConfig, err)
		}
		crit := predict.Criterion{
			Method:    m,
			Threshold: predict.DefaultThreshold,
			Window:    predict.DefaultWindow,
		}
		if i < len(ps.Thresholds) {
			crit.Threshold = ps.Thresholds[i]
		}
		if i < len(ps.Windows) {
			crit.Window = ps.Windows[i]
		}
		p.Criteria = append(p.Criteria, crit)
	}
	return p, p.Validate()
}

func driftConfig(cfg benchConfig) bench.DriftConfig {
	d := bench.DriftConfig{
		Steps:      cfg.Drift.Steps,
		StepWait:   cfg.Drift.StepWait,
		NRep:       cfg.Drift.NRep,
		RTTSamples: cfg.Sync.RTTSamples,
	}
	if d.StepWait == 0 {
		d.StepWait = defaultDriftStep
	}
	if d.NRep == 0 {
		d.NRep = 10
	}
	if d.Steps < 0 || d.StepWait < 0 || d.NRep < 0 {
		logbase.Fatal(slog.Default(), "invalid drift check parameters specified in config")
	}
	return d
}
