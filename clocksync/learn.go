package clocksync

import (
	"slices"

	"github.com/unixpickle/clockbench/base/stats"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// DefaultLatencyShare is the fraction of the round-trip
// time attributed to a single one-way message.
const DefaultLatencyShare = 0.5

// A Learner fits a linear clock model for one rank
// relative to another by exchanging timestamps.
type Learner struct {
	Comm   collcomm.Comm
	Clock  timebase.Clock
	Params Params

	// LatencyShare is multiplied by the round-trip time to
	// estimate the delay of the reference's reply.
	LatencyShare float64
}

// Learn runs the full exchange between root and other.
//
// On other, the result is other's model relative to root.
// On root, it is the zero model.
func (l *Learner) Learn(root, other int, rtt float64) LinearModel {
	if l.Comm.Rank() == root {
		for j := 0; j < l.Params.FitPoints; j++ {
			l.serveRound(other)
		}
		return LinearModel{}
	}
	xs := make([]float64, l.Params.FitPoints)
	ys := make([]float64, l.Params.FitPoints)
	for j := range xs {
		xs[j], ys[j] = l.clientRound(root, rtt)
	}
	return l.fit(xs, ys)
}

// LearnAll runs the exchange between root and every other
// rank at once.
// For each fit point, root serves the ranks in order, so
// every rank's fit points span the same stretch of time.
//
// Every rank must call LearnAll.
func (l *Learner) LearnAll(root int, rtt float64) LinearModel {
	if l.Comm.Rank() == root {
		for j := 0; j < l.Params.FitPoints; j++ {
			for p := 0; p < l.Comm.Size(); p++ {
				if p != root {
					l.serveRound(p)
				}
			}
		}
		return LinearModel{}
	}
	return l.Learn(root, l.Comm.Rank(), rtt)
}

// serveRound answers one round of timestamp requests from
// a client.
func (l *Learner) serveRound(client int) {
	for i := 0; i < l.Params.Exchanges; i++ {
		l.Comm.Recv(client, tagLearn)
		l.Comm.Send(client, tagLearn, []float64{l.Clock.Now()})
	}
}

// clientRound runs one round of exchanges with the
// reference and reduces it to one fit point.
func (l *Learner) clientRound(root int, rtt float64) (localTime, offset float64) {
	localTimes := make([]float64, l.Params.Exchanges)
	offsets := make([]float64, l.Params.Exchanges)
	for i := range offsets {
		l.Comm.Send(root, tagLearn, []float64{l.Clock.Now()})
		remote := l.Comm.Recv(root, tagLearn)[0]
		localTimes[i] = l.Clock.Now()
		offsets[i] = localTimes[i] - remote - rtt*l.LatencyShare
	}
	return selectFitPoint(localTimes, offsets)
}

func (l *Learner) fit(xs, ys []float64) LinearModel {
	intercept, slope := stats.LinearFit(xs, ys)
	return LinearModel{Slope: slope, Intercept: intercept}
}

// selectFitPoint picks the exchange whose offset is the
// median offset.
//
// For an even number of exchanges, the median is taken
// over the smallest n-1 offsets so that it is one of the
// samples rather than an interpolation.
// Ties go to the earliest exchange.
func selectFitPoint(localTimes, offsets []float64) (localTime, offset float64) {
	sorted := slices.Clone(offsets)
	slices.Sort(sorted)
	if len(sorted)%2 == 0 {
		sorted = sorted[:len(sorted)-1]
	}
	median := sorted[len(sorted)/2]
	for i, o := range offsets {
		if o == median {
			return localTimes[i], o
		}
	}
	panic("median is not one of the samples")
}
