package clocksync

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/simulator"
)

// idleComm is a Comm that must never communicate.
type idleComm struct {
	rank int
	size int
}

func (i idleComm) Rank() int                     { return i.rank }
func (i idleComm) Size() int                     { return i.size }
func (i idleComm) Send(dst, tag int, d []float64) { panic("unexpected send") }
func (i idleComm) Recv(src, tag int) []float64    { panic("unexpected receive") }

type constClock float64

func (c constClock) Now() float64 {
	return float64(c)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindBarrier, KindDissemination, KindSKaMPI, KindJK, KindHCA} {
		parsed, err := ParseKind(k.String())
		if err != nil {
			t.Fatal(err)
		} else if parsed != k {
			t.Errorf("expected %v but got %v", k, parsed)
		}
	}
	if k, err := ParseKind("hca"); err != nil || k != KindHCA {
		t.Errorf("unexpected result %v, %v", k, err)
	}
	if _, err := ParseKind("NTP"); err == nil {
		t.Error("expected an error")
	}
}

func TestNewGroupTooSmall(t *testing.T) {
	for _, k := range []Kind{KindSKaMPI, KindJK, KindHCA} {
		_, err := New(Config{Kind: k}, idleComm{size: 1}, constClock(0))
		if !errors.Is(err, ErrGroupTooSmall) {
			t.Errorf("%v: unexpected error %v", k, err)
		}
	}
	for _, k := range []Kind{KindBarrier, KindDissemination} {
		if _, err := New(Config{Kind: k}, idleComm{size: 1}, constClock(0)); err != nil {
			t.Errorf("%v: %v", k, err)
		}
	}
}

func TestNewInvalidConfig(t *testing.T) {
	configs := []Config{
		{RTTSamples: -1},
		{OutlierFactor: -1},
		{LatencyShare: 2},
		{Intercept: InterceptMode(7)},
	}
	for _, cfg := range configs {
		if _, err := New(cfg, idleComm{size: 2}, constClock(0)); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("config %+v: unexpected error %v", cfg, err)
		}
	}
}

func TestInitValidation(t *testing.T) {
	valid := DefaultParams()
	invalid := []Params{
		{WindowSize: 0, WaitTime: 1, FitPoints: 1, Exchanges: 1},
		{WindowSize: 1, WaitTime: -1, FitPoints: 1, Exchanges: 1},
		{WindowSize: 1, WaitTime: 1, FitPoints: 0, Exchanges: 1},
		{WindowSize: 1, WaitTime: 1, FitPoints: 1, Exchanges: -3},
		{WindowSize: math.NaN(), WaitTime: 1, FitPoints: 1, Exchanges: 1},
	}
	for _, params := range invalid {
		s, err := New(Config{Kind: KindJK}, idleComm{size: 2}, constClock(0))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Init(params, 10); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("params %+v: unexpected error %v", params, err)
		}
	}

	s, _ := New(Config{Kind: KindJK}, idleComm{size: 2}, constClock(0))
	if err := s.Init(valid, 0); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("unexpected error for zero repetitions: %v", err)
	}

	// Barrier strategies ignore window parameters.
	s, _ = New(Config{Kind: KindBarrier}, idleComm{size: 2}, constClock(0))
	if err := s.Init(Params{}, 10); err != nil {
		t.Error(err)
	}
}

func TestLifecycleMisuse(t *testing.T) {
	expectPanic := func(name string, f func(s Strategy)) {
		t.Run(name, func(t *testing.T) {
			s, err := New(Config{Kind: KindBarrier}, idleComm{size: 1}, constClock(0))
			if err != nil {
				t.Fatal(err)
			}
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			f(s)
		})
	}
	expectPanic("SyncBeforeInit", func(s Strategy) {
		s.SyncClocks()
	})
	expectPanic("StartBeforeBatch", func(s Strategy) {
		s.Init(DefaultParams(), 2)
		s.SyncClocks()
		s.StartSync()
	})
	expectPanic("StopWithoutStart", func(s Strategy) {
		s.Init(DefaultParams(), 2)
		s.SyncClocks()
		s.InitSync()
		s.StopSync()
	})
	expectPanic("TooManyIterations", func(s Strategy) {
		s.Init(DefaultParams(), 1)
		s.SyncClocks()
		s.InitSync()
		for i := 0; i < 2; i++ {
			s.StartSync()
			s.StopSync()
		}
	})
	expectPanic("AfterCleanup", func(s Strategy) {
		s.Init(DefaultParams(), 1)
		s.SyncClocks()
		s.Cleanup()
		s.Cleanup()
		s.InitSync()
	})
}

func TestBarrierIdentity(t *testing.T) {
	for _, k := range []Kind{KindBarrier, KindDissemination} {
		s, err := New(Config{Kind: k}, idleComm{size: 1}, constClock(0))
		if err != nil {
			t.Fatal(err)
		}
		s.Init(Params{}, 1)
		s.SyncClocks()
		for _, x := range []float64{0, -1, 1e-9, 12345.678, math.Inf(1)} {
			if actual := s.NormalizedTime(x); actual != x {
				t.Errorf("%v: normalized %f to %f", k, x, actual)
			}
		}
		s.InitSync()
		if s.ErrorCodes() != nil {
			t.Errorf("%v: unexpected error codes", k)
		}
	}
}

func TestWriteInfo(t *testing.T) {
	params := ParamsFromMicros(100, 1000, 20, 10)
	cases := []struct {
		cfg      Config
		expected string
	}{
		{Config{Kind: KindBarrier}, "#@sync=MPI_Barrier\n"},
		{
			Config{Kind: KindDissemination, DoubleBarrier: true},
			"#@sync=BBarrier\n#@doublebarrier=true\n",
		},
		{
			Config{Kind: KindSKaMPI},
			"#@sync=SKaMPI\n#@window_s=0.0001000000\n#@wait_time_s=0.0010000000\n",
		},
		{
			Config{Kind: KindJK},
			"#@sync=JK\n#@window_s=0.0001000000\n#@fitpoints=20\n#@exchanges=10\n" +
				"#@wait_time_s=0.0010000000\n",
		},
		{
			Config{Kind: KindHCA, Intercept: InterceptLogP},
			"#@sync=HCA\n#@window_s=0.0001000000\n#@fitpoints=20\n#@exchanges=10\n" +
				"#@wait_time_s=0.0010000000\n#@hcasynctype=logp\n",
		},
	}
	for _, c := range cases {
		s, err := New(c.cfg, idleComm{size: 2}, constClock(0))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Init(params, 1); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := s.WriteInfo(&buf); err != nil {
			t.Fatal(err)
		}
		if buf.String() != c.expected {
			t.Errorf("%v: expected\n%s\nbut got\n%s", c.cfg.Kind, c.expected, buf.String())
		}
	}
}

type syncReading struct {
	virtual    float64
	normalized float64
}

type syncRun struct {
	clocks   []simulator.ClockSpec
	readings []syncReading
	starts   [][]float64
	codes    [][]int
	models   []LinearModel
}

// runSync calibrates a strategy on a simulated group with
// drifting clocks, records every rank's view of global
// time, and then runs one batch of empty iterations.
func runSync(t *testing.T, cfg Config, n, nrep int, seed int64) *syncRun {
	loop := simulator.NewEventLoopSeed(seed)
	network := simulator.NewOrderedNetwork(1e-6, 5e-8, 1e9)
	run := &syncRun{
		clocks:   simulator.RandomClocks(loop, n, 1e-3, 1e-6, 1e-7),
		readings: make([]syncReading, n),
		starts:   make([][]float64, n),
		codes:    make([][]int, n),
		models:   make([]LinearModel, n),
	}
	params := Params{WindowSize: 5e-5, WaitTime: 1e-4, FitPoints: 8, Exchanges: 5}
	collcomm.SpawnSim(loop, network, run.clocks, func(c *collcomm.SimComm) {
		rank := c.Rank()
		s, err := New(cfg, c, c.Clock)
		if err != nil {
			t.Error(err)
			return
		}
		defer s.Cleanup()
		if err := s.Init(params, nrep); err != nil {
			t.Error(err)
			return
		}
		s.SyncClocks()
		run.models[rank] = s.(*Module).Model()
		run.readings[rank] = syncReading{
			normalized: s.NormalizedTime(s.Now()),
			virtual:    c.Handle.Time(),
		}

		s.InitSync()
		for i := 0; i < nrep; i++ {
			s.StartSync()
			run.starts[rank] = append(run.starts[rank], s.NormalizedTime(s.Now()))
			s.StopSync()
		}
		run.codes[rank] = append([]int{}, s.ErrorCodes()...)
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	return run
}

// maxError compares every rank's normalized reading to the
// reference rank's time at the same virtual instant.
func (s *syncRun) maxError() float64 {
	// The reference's own reading reveals any constant that
	// the strategy subtracts from its raw clock.
	ref := s.readings[0]
	shift := s.clocks[0].Offset + ref.virtual*(1+s.clocks[0].Drift) - ref.normalized

	var maxErr float64
	for _, r := range s.readings[1:] {
		expected := s.clocks[0].Offset + r.virtual*(1+s.clocks[0].Drift) - shift
		maxErr = math.Max(maxErr, math.Abs(r.normalized-expected))
	}
	return maxErr
}

func TestWindowedStrategies(t *testing.T) {
	cases := []struct {
		cfg Config
		n   int
	}{
		{Config{Kind: KindSKaMPI}, 4},
		{Config{Kind: KindJK, RTTSamples: 50}, 4},
		{Config{Kind: KindJK, RTTSamples: 50}, 3},
		{Config{Kind: KindHCA, RTTSamples: 50}, 8},
		{Config{Kind: KindHCA, RTTSamples: 50}, 6},
		{Config{Kind: KindHCA, RTTSamples: 50, Intercept: InterceptLogP}, 8},
		{Config{Kind: KindHCA, RTTSamples: 50, Intercept: InterceptLogP}, 5},
	}
	for i, c := range cases {
		name := fmt.Sprintf("%v-%v-%d", c.cfg.Kind, c.cfg.Intercept, c.n)
		t.Run(name, func(t *testing.T) {
			const nrep = 5
			run := runSync(t, c.cfg, c.n, nrep, int64(i+10))
			if run.models[0] != (LinearModel{}) {
				t.Errorf("reference model is %v", run.models[0])
			}
			if e := run.maxError(); e > 2e-6 {
				t.Errorf("clock error %e is too large", e)
			}
			for rank, codes := range run.codes {
				if len(codes) != nrep {
					t.Fatalf("rank %d: got %d error codes", rank, len(codes))
				}
				for j, code := range codes {
					if code != 0 {
						t.Errorf("rank %d iteration %d: error code %d", rank, j, code)
					}
				}
			}
			for j := 0; j < nrep; j++ {
				for rank := 1; rank < c.n; rank++ {
					if diff := math.Abs(run.starts[rank][j] - run.starts[0][j]); diff > 5e-6 {
						t.Errorf("iteration %d: rank %d started %e apart from reference", j, rank, diff)
					}
				}
				if j > 0 {
					gap := run.starts[0][j] - run.starts[0][j-1]
					if math.Abs(gap-5e-5) > 1e-6 {
						t.Errorf("iteration %d: windows are %e apart", j, gap)
					}
				}
			}
		})
	}
}

func TestWindowExpired(t *testing.T) {
	loop := simulator.NewEventLoopSeed(4)
	network := simulator.NewOrderedNetwork(1e-6, 0, 0)
	clocks := []simulator.ClockSpec{{ReadCost: 1e-7}, {Offset: 0.5, ReadCost: 1e-7}}
	params := Params{WindowSize: 1e-4, WaitTime: 1e-4, FitPoints: 4, Exchanges: 3}
	codes := make([][]int, 2)
	collcomm.SpawnSim(loop, network, clocks, func(c *collcomm.SimComm) {
		s, err := New(Config{Kind: KindJK, RTTSamples: 10}, c, c.Clock)
		if err != nil {
			t.Error(err)
			return
		}
		s.Init(params, 3)
		s.SyncClocks()
		s.InitSync()
		for i := 0; i < 3; i++ {
			s.StartSync()
			if i == 0 && c.Rank() == 1 {
				// Overrun the first window; the second
				// iteration then starts late.
				c.Sleep(1.5e-4)
			}
			s.StopSync()
		}
		codes[c.Rank()] = append([]int{}, s.ErrorCodes()...)
		s.Cleanup()
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	expected := [][]int{{0, 0, 0}, {WindowExpired, StartTimeHasPassed, 0}}
	for rank := range codes {
		for i, code := range codes[rank] {
			if code != expected[rank][i] {
				t.Errorf("rank %d iteration %d: expected %d but got %d", rank, i,
					expected[rank][i], code)
			}
		}
	}
}

func TestDisseminationBarrier(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		t.Run(fmt.Sprintf("Ranks=%d", n), func(t *testing.T) {
			loop := simulator.NewEventLoopSeed(int64(n))
			network := simulator.NewOrderedNetwork(1e-6, 5e-7, 0)
			arrivals := make([]float64, n)
			departures := make([]float64, n)
			collcomm.SpawnSim(loop, network, make([]simulator.ClockSpec, n), func(c *collcomm.SimComm) {
				c.Sleep(float64(c.Rank()) * 1e-3)
				arrivals[c.Rank()] = c.Handle.Time()
				DisseminationBarrier(c)
				departures[c.Rank()] = c.Handle.Time()
				DisseminationBarrier(c)
			})
			if err := loop.Run(); err != nil {
				t.Fatal(err)
			}
			lastArrival := arrivals[n-1]
			for rank, d := range departures {
				if d < lastArrival {
					t.Errorf("rank %d left at %f before the last arrival at %f", rank, d, lastArrival)
				}
			}
		})
	}
}
