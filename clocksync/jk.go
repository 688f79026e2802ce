package clocksync

import (
	"math"

	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// jkSync learns every rank's drift model directly against
// rank 0.
type jkSync struct {
	modelSync
	rtt RTTEstimator

	latencyShare float64
}

func newJKSync(cfg Config, comm collcomm.Comm, clock timebase.Clock) *jkSync {
	j := &jkSync{
		rtt: RTTEstimator{
			Comm:          comm,
			Clock:         clock,
			Log:           cfg.Log,
			Samples:       cfg.RTTSamples,
			OutlierFactor: cfg.OutlierFactor,
		},
		latencyShare: cfg.LatencyShare,
	}
	j.bind(comm, clock)
	return j
}

func (j *jkSync) calibrate() {
	warmUp(j.comm, 0)

	rank, size := j.comm.Rank(), j.comm.Size()
	var rtts [][]float64
	if rank == 0 {
		rtts = make([][]float64, size)
		rtts[0] = []float64{0}
	}
	for p := 1; p < size; p++ {
		if rank == 0 {
			rtts[p] = []float64{j.rtt.EstimateAtRoot(0, p)}
		} else if rank == p {
			j.rtt.EstimateAtRoot(0, p)
		}
	}
	myRTT := collcomm.Scatter(j.comm, 0, rtts)[0]

	learner := Learner{
		Comm:         j.comm,
		Clock:        j.clk,
		Params:       j.params,
		LatencyShare: j.latencyShare,
	}
	j.model = learner.LearnAll(0, myRTT)
	collcomm.Barrier(j.comm)
}

func (j *jkSync) writeInfo(w *infoWriter) {
	w.str("sync", KindJK.String())
	j.writeWindowInfo(w)
	w.int("fitpoints", j.params.FitPoints)
	w.int("exchanges", j.params.Exchanges)
	w.float("wait_time_s", j.params.WaitTime)
}

// warmUp bounces a few messages between root and every
// other rank before anything is timed.
func warmUp(c collcomm.Comm, root int) {
	msg := []float64{math.NaN()}
	if c.Rank() == root {
		for i := 0; i < rttWarmupRounds; i++ {
			for p := 0; p < c.Size(); p++ {
				if p != root {
					c.Send(p, tagWarmup, msg)
					c.Recv(p, tagWarmup)
				}
			}
		}
	} else {
		for i := 0; i < rttWarmupRounds; i++ {
			c.Recv(root, tagWarmup)
			c.Send(root, tagWarmup, msg)
		}
	}
}
