// Clock synchronization benchmark harness

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/mmcloughlin/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unixpickle/clockbench/base/logbase"
	"github.com/unixpickle/clockbench/bench"
	"github.com/unixpickle/clockbench/bench/predict"
	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/collcomm/wsnet"
	"github.com/unixpickle/clockbench/simulator"
	"github.com/unixpickle/clockbench/timebase"
)

const (
	logLevelQuiet = iota
	logLevelDefault
	logLevelVerbose

	clockNameSimulated = "simulated"
)

func initLogger(logLevel int) {
	var h slog.Handler
	if logLevel == logLevelQuiet {
		h = slog.DiscardHandler
	} else {
		var (
			addSource   bool
			level       slog.Leveler
			replaceAttr func(groups []string, a slog.Attr) slog.Attr
		)
		if logLevel == logLevelVerbose {
			_, f, _, ok := runtime.Caller(0)
			var basepath string
			if ok {
				basepath = filepath.Dir(filepath.Dir(filepath.Dir(f)))
			}
			addSource = true
			level = slog.LevelDebug
			replaceAttr = func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.SourceKey {
					source := a.Value.Any().(*slog.Source)
					if basepath == "" {
						source.File = filepath.Base(source.File)
					} else {
						relpath, err := filepath.Rel(basepath, source.File)
						if err != nil {
							source.File = filepath.Base(source.File)
						} else {
							source.File = relpath
						}
					}
				}
				return a
			}
		}
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			AddSource:   addSource,
			Level:       level,
			ReplaceAttr: replaceAttr,
		})
	}
	slog.SetDefault(slog.New(h))
}

func showInfo() {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		fmt.Print(bi.String())
	}
	fmt.Println("operations:", bench.OpNames())
}

func runMonitor(cfg benchConfig) {
	if cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		err := http.ListenAndServe(cfg.Metrics.Addr, nil)
		logbase.Fatal(slog.Default(), "failed to serve metrics", slog.Any("error", err))
	}()
}

// runJobs measures every configured job on one rank.
//
// Rank 0 prints the results to w.
func runJobs(ctx context.Context, c collcomm.Comm, clock timebase.Clock, clkName string,
	cfg benchConfig, runID uuid.UUID, w io.Writer) {
	log := slog.Default().With(slog.Int("rank", c.Rank()))
	params := syncParams(cfg)
	scfg := strategyConfig(cfg, log)
	op := reduceOp(cfg)
	pcfg := predictConfig(cfg)

	for i, job := range jobs(cfg) {
		s, err := clocksync.New(scfg, c, clock)
		if err != nil {
			logbase.FatalContext(ctx, log, "failed to create synchronization strategy",
				slog.Any("error", err))
		}

		var write func() error
		if pcfg != nil {
			res, err := predict.Run(ctx, log, c, s, params, job, op, *pcfg)
			if err != nil {
				logbase.FatalContext(ctx, log, "failed to run benchmark", slog.String("op", job.Name),
					slog.Any("error", err))
			}
			if res != nil {
				write = func() error { return predict.WriteResults(w, res, *pcfg) }
			}
		} else {
			res, err := bench.Run(ctx, log, c, s, params, job, op)
			if err != nil {
				logbase.FatalContext(ctx, log, "failed to run benchmark", slog.String("op", job.Name),
					slog.Any("error", err))
			}
			if res != nil {
				write = func() error { return bench.WriteResults(w, res, cfg.Bench.Summary) }
			}
		}
		if write == nil {
			continue
		}

		if i == 0 {
			if err := writeHeader(w, job, clkName, s, cfg, pcfg, runID); err != nil {
				logbase.FatalContext(ctx, log, "failed to write results", slog.Any("error", err))
			}
		}
		if err := write(); err != nil {
			logbase.FatalContext(ctx, log, "failed to write results", slog.Any("error", err))
		}
	}
}

func writeHeader(w io.Writer, job bench.Job, clkName string, s clocksync.Strategy,
	cfg benchConfig, pcfg *predict.Config, runID uuid.UUID) error {
	h := bench.Header{
		RunID:    runID,
		NRep:     job.NRep,
		Clock:    clkName,
		Strategy: s,
		Summary:  cfg.Bench.Summary,
	}
	if pcfg != nil {
		if err := predict.WriteInfo(w, *pcfg); err != nil {
			return err
		}
		h.Columns = predict.Columns
	}
	return bench.WriteHeader(w, h)
}

// runDrift runs the clock drift check on one rank.
//
// Rank 0 prints the report to w and, if plotFile is set,
// plots it.
func runDrift(ctx context.Context, c bench.SleepComm, clock timebase.Clock, cfg benchConfig,
	plotFile string, w io.Writer) {
	log := slog.Default().With(slog.Int("rank", c.Rank()))
	scfg := strategyConfig(cfg, log)
	if !scfg.Kind.Windowed() {
		logbase.FatalContext(ctx, log, "drift check needs a model-based strategy",
			slog.String("strategy", scfg.Kind.String()))
	}
	s, err := clocksync.New(scfg, c, clock)
	if err != nil {
		logbase.FatalContext(ctx, log, "failed to create synchronization strategy",
			slog.Any("error", err))
	}
	if err := s.Init(syncParams(cfg), 1); err != nil {
		logbase.FatalContext(ctx, log, "failed to initialize synchronization strategy",
			slog.Any("error", err))
	}
	defer s.Cleanup()

	report := bench.CheckDrift(c, s, driftConfig(cfg))
	if report == nil {
		return
	}
	if err := bench.WriteDrift(w, report); err != nil {
		logbase.FatalContext(ctx, log, "failed to write drift report", slog.Any("error", err))
	}
	if plotFile != "" {
		if err := bench.PlotDrift(report, plotFile); err != nil {
			logbase.FatalContext(ctx, log, "failed to plot drift report", slog.Any("error", err))
		}
	}
}

func runSimulate(configFile string) {
	ctx := context.Background()
	cfg := loadConfig(configFile)
	validateConfig(cfg)
	runMonitor(cfg)

	loop := simulator.NewEventLoopSeed(cfg.Sim.Seed)
	network := simNetwork(cfg)
	clocks := simClocks(cfg, loop)
	runID := uuid.New()
	collcomm.SpawnSim(loop, network, clocks, func(c *collcomm.SimComm) {
		runJobs(ctx, c, c.Clock, clockNameSimulated, cfg, runID, os.Stdout)
	})
	if err := loop.Run(); err != nil {
		logbase.Fatal(slog.Default(), "simulation failed", slog.Any("error", err))
	}
}

func runLocal(configFile string) {
	ctx := context.Background()
	cfg := loadConfig(configFile)
	validateConfig(cfg)
	runMonitor(cfg)

	n := numRanks(cfg)
	clkName := clockName(cfg)
	runID := uuid.New()
	err := collcomm.RunLocal(n, func(c *collcomm.LocalComm) error {
		runJobs(ctx, c, localClock(cfg), clkName, cfg, runID, os.Stdout)
		return nil
	})
	if err != nil {
		logbase.Fatal(slog.Default(), "local run failed", slog.Any("error", err))
	}
}

func dialRank(ctx context.Context, cfg benchConfig, rank int) *wsnet.Comm {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout(cfg))
	defer cancel()
	c, err := wsnet.Dial(ctx, wsnet.Config{
		Rank:  rank,
		Addrs: rankAddrs(cfg, rank),
		Log:   slog.Default(),
	})
	if err != nil {
		logbase.Fatal(slog.Default(), "failed to connect to process group", slog.Any("error", err))
	}
	return c
}

func runRank(configFile string, rank int) {
	ctx := context.Background()
	cfg := loadConfig(configFile)
	clock := localClock(cfg)
	validateConfig(cfg)
	runMonitor(cfg)

	c := dialRank(ctx, cfg, rank)
	defer c.Close()
	runJobs(ctx, c, clock, clockName(cfg), cfg, uuid.New(), os.Stdout)
}

func runDriftCheck(configFile string, rank int, simulate bool, plotFile string) {
	ctx := context.Background()
	cfg := loadConfig(configFile)
	validateConfig(cfg)
	driftConfig(cfg)
	runMonitor(cfg)

	if !simulate {
		clock := localClock(cfg)
		c := dialRank(ctx, cfg, rank)
		defer c.Close()
		runDrift(ctx, c, clock, cfg, plotFile, os.Stdout)
		return
	}

	loop := simulator.NewEventLoopSeed(cfg.Sim.Seed)
	network := simNetwork(cfg)
	clocks := simClocks(cfg, loop)
	collcomm.SpawnSim(loop, network, clocks, func(c *collcomm.SimComm) {
		runDrift(ctx, c, c.Clock, cfg, plotFile, os.Stdout)
	})
	if err := loop.Run(); err != nil {
		logbase.Fatal(slog.Default(), "simulation failed", slog.Any("error", err))
	}
}

type noProfile struct{}

func (noProfile) Stop() {}

func exitWithUsage() {
	fmt.Println("<usage>")
	os.Exit(1)
}

func main() {
	var (
		quiet      bool
		verbose    bool
		configFile string
		profileDir string
		rank       int
		simulate   bool
		plotFile   string
	)

	infoFlags := flag.NewFlagSet("info", flag.ExitOnError)
	simulateFlags := flag.NewFlagSet("simulate", flag.ExitOnError)
	localFlags := flag.NewFlagSet("local", flag.ExitOnError)
	rankFlags := flag.NewFlagSet("rank", flag.ExitOnError)
	driftFlags := flag.NewFlagSet("drift", flag.ExitOnError)

	simulateFlags.BoolVar(&quiet, "quiet", false, "Disable logging")
	simulateFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	simulateFlags.StringVar(&configFile, "config", "", "Config file")
	simulateFlags.StringVar(&profileDir, "profile", "", "Directory for CPU and heap profiles")

	localFlags.BoolVar(&quiet, "quiet", false, "Disable logging")
	localFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	localFlags.StringVar(&configFile, "config", "", "Config file")
	localFlags.StringVar(&profileDir, "profile", "", "Directory for CPU and heap profiles")

	rankFlags.BoolVar(&quiet, "quiet", false, "Disable logging")
	rankFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	rankFlags.StringVar(&configFile, "config", "", "Config file")
	rankFlags.StringVar(&profileDir, "profile", "", "Directory for CPU and heap profiles")
	rankFlags.IntVar(&rank, "rank", -1, "Rank of this process")

	driftFlags.BoolVar(&quiet, "quiet", false, "Disable logging")
	driftFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	driftFlags.StringVar(&configFile, "config", "", "Config file")
	driftFlags.IntVar(&rank, "rank", -1, "Rank of this process")
	driftFlags.BoolVar(&simulate, "simulate", false, "Run on the simulator")
	driftFlags.StringVar(&plotFile, "plot", "", "Output PNG file for the offset plot")

	logLevel := func() int {
		if quiet && verbose {
			exitWithUsage()
		}
		if quiet {
			return logLevelQuiet
		}
		if verbose {
			return logLevelVerbose
		}
		return logLevelDefault
	}

	startProfile := func() interface{ Stop() } {
		if profileDir == "" {
			return noProfile{}
		}
		return profile.Start(profile.CPUProfile, profile.MemProfile, profile.WithPath(profileDir))
	}

	if len(os.Args) < 2 {
		exitWithUsage()
	}

	switch os.Args[1] {
	case infoFlags.Name():
		err := infoFlags.Parse(os.Args[2:])
		if err != nil || infoFlags.NArg() != 0 {
			exitWithUsage()
		}
		showInfo()
	case simulateFlags.Name():
		err := simulateFlags.Parse(os.Args[2:])
		if err != nil || simulateFlags.NArg() != 0 {
			exitWithUsage()
		}
		initLogger(logLevel())
		p := startProfile()
		runSimulate(configFile)
		p.Stop()
	case localFlags.Name():
		err := localFlags.Parse(os.Args[2:])
		if err != nil || localFlags.NArg() != 0 {
			exitWithUsage()
		}
		initLogger(logLevel())
		p := startProfile()
		runLocal(configFile)
		p.Stop()
	case rankFlags.Name():
		err := rankFlags.Parse(os.Args[2:])
		if err != nil || rankFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" || rank < 0 {
			exitWithUsage()
		}
		initLogger(logLevel())
		p := startProfile()
		runRank(configFile, rank)
		p.Stop()
	case driftFlags.Name():
		err := driftFlags.Parse(os.Args[2:])
		if err != nil || driftFlags.NArg() != 0 {
			exitWithUsage()
		}
		if !simulate && (configFile == "" || rank < 0) {
			exitWithUsage()
		}
		initLogger(logLevel())
		runDriftCheck(configFile, rank, simulate, plotFile)
	default:
		exitWithUsage()
	}
}
