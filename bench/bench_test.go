package bench

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/runtimes"
	"github.com/unixpickle/clockbench/simulator"
)

var testParams = clocksync.Params{WindowSize: 1e-4, WaitTime: 1e-4, FitPoints: 6, Exchanges: 5}

// runJob measures a job on a simulated group and returns
// rank 0's result.
func runJob(t *testing.T, cfg clocksync.Config, n int, job Job) *Result {
	loop := simulator.NewEventLoopSeed(int64(n))
	network := simulator.NewOrderedNetwork(1e-6, 5e-8, 1e9)
	clocks := simulator.RandomClocks(loop, n, 1e-3, 1e-6, 1e-7)
	for i := range clocks {
		clocks[i].Drift = 0
	}
	var res *Result
	collcomm.SpawnSim(loop, network, clocks, func(c *collcomm.SimComm) {
		s, err := clocksync.New(cfg, c, c.Clock)
		if err != nil {
			t.Error(err)
			return
		}
		log := slog.New(slog.DiscardHandler)
		r, err := Run(context.Background(), log, c, s, testParams, job, runtimes.OpMax)
		if err != nil {
			t.Error(err)
		} else if c.Rank() == 0 {
			res = r
		} else if r != nil {
			t.Errorf("rank %d: unexpected result", c.Rank())
		}
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("no result")
	}
	return res
}

func TestRunBarrier(t *testing.T) {
	op, _ := LookupOp("noop")
	job := Job{Name: "noop", Op: op, NRep: 5, Batches: 1}
	res := runJob(t, clocksync.Config{Kind: clocksync.KindBarrier}, 4, job)
	if len(res.Runtimes) != 5 || len(res.Valid) != 5 {
		t.Fatalf("unexpected result sizes %d, %d", len(res.Runtimes), len(res.Valid))
	}
	for i, code := range res.Codes {
		if code != 0 {
			t.Errorf("iteration %d: code %d", i, code)
		}
	}
	for i, r := range res.Runtimes {
		// Each rank only pays for one clock read.
		if math.Abs(r-1e-7) > 1e-12 {
			t.Errorf("iteration %d: runtime %e", i, r)
		}
	}
}

func TestRunWindowed(t *testing.T) {
	for _, kind := range []clocksync.Kind{clocksync.KindJK, clocksync.KindHCA} {
		t.Run(kind.String(), func(t *testing.T) {
			op, _ := LookupOp("sleep:1e-5")
			job := Job{Name: "sleep", Op: op, NRep: 4, Batches: 2}
			cfg := clocksync.Config{Kind: kind, RTTSamples: 20}
			res := runJob(t, cfg, 3, job)
			if len(res.Runtimes) != 8 || len(res.Valid) != 8 {
				t.Fatalf("unexpected result sizes %d, %d", len(res.Runtimes), len(res.Valid))
			}
			for i, r := range res.Runtimes {
				if math.Abs(r-1e-5) > 3e-6 {
					t.Errorf("iteration %d: runtime %e", i, r)
				}
			}
		})
	}
}

func TestRunOverrun(t *testing.T) {
	op, _ := LookupOp("sleep:2e-4")
	job := Job{Name: "sleep", Op: op, NRep: 3, Batches: 1}
	res := runJob(t, clocksync.Config{Kind: clocksync.KindJK, RTTSamples: 20}, 2, job)
	if len(res.Runtimes) != 3 {
		t.Fatalf("unexpected number of runtimes: %d", len(res.Runtimes))
	}
	if len(res.Valid) != 0 {
		t.Errorf("expected no valid iterations, got %v", res.Valid)
	}
	for i, code := range res.Codes {
		if code&clocksync.WindowExpired == 0 {
			t.Errorf("iteration %d: code %d", i, code)
		}
	}
}

func TestOps(t *testing.T) {
	for _, name := range OpNames() {
		t.Run(name, func(t *testing.T) {
			op, err := LookupOp(name)
			if err != nil {
				t.Fatal(err)
			}
			job := Job{Name: name, Op: op, MsgSize: 16, NRep: 3, Batches: 1}
			res := runJob(t, clocksync.Config{Kind: clocksync.KindDissemination}, 5, job)
			if len(res.Valid) != 3 {
				t.Errorf("expected 3 valid iterations, got %d", len(res.Valid))
			}
		})
	}
}

func TestLookupOp(t *testing.T) {
	for _, name := range []string{"sleep:", "sleep:-1", "sleep:abc", "gather"} {
		if _, err := LookupOp(name); err == nil {
			t.Errorf("%q: expected an error", name)
		}
	}
}

func TestWriteResults(t *testing.T) {
	res := &Result{
		Job:      Job{Name: "bcast", MsgSize: 8},
		Runtimes: []float64{0.5, 0.25, 1},
		Codes:    []int{0, 2, 0},
		Valid:    []float64{0.5, 1},
	}
	var buf bytes.Buffer
	if err := WriteResults(&buf, res, false); err != nil {
		t.Fatal(err)
	}
	expected := "bcast 0 8 0 0.5000000000\n" +
		"bcast 1 8 2 0.2500000000\n" +
		"bcast 2 8 0 1.0000000000\n"
	if buf.String() != expected {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	if err := WriteResults(&buf, res, true); err != nil {
		t.Fatal(err)
	}
	expected = "bcast 8 3 2 0.7500000000 0.7500000000 0.5000000000 1.0000000000\n"
	if buf.String() != expected {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestWriteHeader(t *testing.T) {
	s, err := clocksync.New(clocksync.Config{Kind: clocksync.KindBarrier},
		idleComm{}, constClock(0))
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	var buf bytes.Buffer
	err = WriteHeader(&buf, Header{RunID: id, NRep: 10, Clock: "raw", Strategy: s, Summary: true})
	if err != nil {
		t.Fatal(err)
	}
	expected := "#@nrep=10\n#@run_id=6ba7b810-9dad-11d1-80b4-00c04fd430c8\n#@clock=raw\n" +
		"#@sync=MPI_Barrier\n" +
		"test msize total_nrep valid_nrep mean_sec median_sec min_sec max_sec\n"
	if buf.String() != expected {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestCheckDrift(t *testing.T) {
	const n = 3
	loop := simulator.NewEventLoopSeed(7)
	network := simulator.NewOrderedNetwork(1e-6, 5e-8, 1e9)
	clocks := simulator.RandomClocks(loop, n, 1e-2, 1e-6, 1e-7)
	cfg := DriftConfig{Steps: 2, StepWait: 1e-3, NRep: 3, RTTSamples: 20}
	var report *DriftReport
	collcomm.SpawnSim(loop, network, clocks, func(c *collcomm.SimComm) {
		s, err := clocksync.New(clocksync.Config{Kind: clocksync.KindJK, RTTSamples: 20}, c, c.Clock)
		if err != nil {
			t.Error(err)
			return
		}
		if err := s.Init(testParams, 1); err != nil {
			t.Error(err)
			return
		}
		if r := CheckDrift(c, s, cfg); c.Rank() == 0 {
			report = r
		}
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if len(report.Samples) != (cfg.Steps+1)*(n-1)*cfg.NRep {
		t.Fatalf("unexpected number of samples: %d", len(report.Samples))
	}
	if !(report.SyncDuration > 0) {
		t.Errorf("bad sync duration %f", report.SyncDuration)
	}
	for _, s := range report.Samples {
		if math.Abs(s.Diff()) > 5e-6 {
			t.Errorf("rank %d rep %d after %f: error %e", s.Rank, s.Rep, s.Wait, s.Diff())
		}
	}

	var buf bytes.Buffer
	if err := WriteDrift(&buf, report); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(report.Samples)+2 || lines[1] != "wait_time_s p rep gtime reftime diff" {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "drift.png")
	if err := PlotDrift(report, path); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("plot was not written: %v", err)
	}
}

type idleComm struct{}

func (idleComm) Rank() int                     { return 0 }
func (idleComm) Size() int                     { return 1 }
func (idleComm) Send(dst, tag int, d []float64) { panic("unexpected send") }
func (idleComm) Recv(src, tag int) []float64    { panic("unexpected receive") }

type constClock float64

func (c constClock) Now() float64 {
	return float64(c)
}
