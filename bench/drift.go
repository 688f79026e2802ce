package bench

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/collcomm"
)

const tagDrift = 1 << 21

// SleepComm is a Comm whose ranks can wait.
type SleepComm interface {
	collcomm.Comm
	collcomm.Sleeper
}

// DriftConfig configures CheckDrift.
type DriftConfig struct {
	// Steps is the number of waits after the first round
	// of readings.
	Steps int

	// StepWait is the time between rounds, in seconds.
	StepWait float64

	// NRep is the number of readings per rank and round.
	NRep int

	// RTTSamples is passed to the RTT estimator.
	RTTSamples int
}

// A DriftSample compares a rank's global time to rank 0's
// time at the same instant.
type DriftSample struct {
	Wait   float64
	Rank   int
	Rep    int
	Global float64
	Ref    float64
}

// Diff is the error of the rank's global time.
func (d DriftSample) Diff() float64 {
	return d.Global - d.Ref
}

// A DriftReport is the result of CheckDrift.
type DriftReport struct {
	SyncDuration float64
	Samples      []DriftSample
}

// CheckDrift measures how far every rank's global time
// strays from rank 0's clock as time passes after a
// synchronization.
//
// The Strategy must have been initialized but not yet
// synchronized.
// Every rank must call CheckDrift; the report is returned
// on rank 0 and is nil on the others.
func CheckDrift(c SleepComm, s clocksync.Strategy, cfg DriftConfig) *DriftReport {
	rank, size := c.Rank(), c.Size()
	samples := cfg.RTTSamples
	if samples == 0 {
		samples = clocksync.DefaultRTTSamples
	}
	rtt := &clocksync.RTTEstimator{
		Comm:          c,
		Clock:         s,
		Samples:       samples,
		OutlierFactor: clocksync.DefaultOutlierFactor,
	}
	rtts := make([]float64, size)
	for p := 1; p < size; p++ {
		if rank == 0 || rank == p {
			rtts[p] = rtt.Estimate(0, p)
		}
	}

	start := s.Now()
	s.SyncClocks()
	s.InitSync()
	syncDuration := s.Now() - start

	if rank != 0 {
		for step := 0; step <= cfg.Steps; step++ {
			for i := 0; i < cfg.NRep; i++ {
				c.Recv(0, tagDrift)
				local := s.Now()
				c.Send(0, tagDrift, []float64{local, s.NormalizedTime(local)})
			}
		}
		return nil
	}

	report := &DriftReport{SyncDuration: syncDuration}
	for step := 0; step <= cfg.Steps; step++ {
		for p := 1; p < size; p++ {
			for i := 0; i < cfg.NRep; i++ {
				c.Send(p, tagDrift, nil)
				msg := c.Recv(p, tagDrift)
				report.Samples = append(report.Samples, DriftSample{
					Wait:   float64(step) * cfg.StepWait,
					Rank:   p,
					Rep:    i,
					Global: msg[1],
					Ref:    s.NormalizedTime(s.Now()) - rtts[p]/2,
				})
			}
		}
		c.Sleep(cfg.StepWait)
	}
	return report
}

// WriteDrift prints a report in the drift-check format.
func WriteDrift(w io.Writer, r *DriftReport) error {
	if _, err := fmt.Fprintf(w, "#@sync_duration=%14.9f\nwait_time_s p rep gtime reftime diff\n",
		r.SyncDuration); err != nil {
		return err
	}
	for _, s := range r.Samples {
		_, err := fmt.Fprintf(w, "%14.9f %3d %4d %14.9f %14.9f %14.9f\n", s.Wait, s.Rank, s.Rep,
			s.Global, s.Ref, s.Diff())
		if err != nil {
			return err
		}
	}
	return nil
}

// PlotDrift draws every rank's clock error over time and
// saves the plot to path; the format follows the file
// extension.
func PlotDrift(r *DriftReport, path string) error {
	p := plot.New()
	p.Title.Text = "Global clock error"
	p.X.Label.Text = "time since synchronization (s)"
	p.Y.Label.Text = "error (s)"
	p.Add(plotter.NewGrid())

	byRank := map[int]plotter.XYs{}
	var ranks []int
	for _, s := range r.Samples {
		if _, ok := byRank[s.Rank]; !ok {
			ranks = append(ranks, s.Rank)
		}
		byRank[s.Rank] = append(byRank[s.Rank], plotter.XY{X: s.Wait, Y: s.Diff()})
	}
	for i, rank := range ranks {
		scatter, err := plotter.NewScatter(byRank[rank])
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("rank %d", rank), scatter)
	}

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.Color = color.Gray{Y: 128}
	p.Add(zero)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
