// Package bench measures operations on a process group,
// using a clocksync.Strategy to separate and time the
// iterations.
package bench

import (
	"context"
	"errors"
	"log/slog"

	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/runtimes"
)

// ErrNoRepetitions is returned for jobs without batches.
var ErrNoRepetitions = errors.New("job has no batches")

// A Job is one operation measured in one or more batches
// of NRep iterations.
type Job struct {
	Name    string
	Op      Op
	MsgSize int
	NRep    int
	Batches int
}

// A Result holds the measurements of a Job.
type Result struct {
	Job Job

	// Runtimes and Codes have one entry per iteration of
	// every batch, in order.
	Runtimes []float64
	Codes    []int

	// Valid holds the runtimes whose code is zero.
	Valid []float64
}

// Run measures a job.
//
// The Strategy must be fresh: Run initializes it,
// synchronizes the clocks, and cleans it up afterwards.
// Every rank must call Run; the Result is returned on rank
// 0 and is nil on the others.
func Run(ctx context.Context, log *slog.Logger, c collcomm.Comm, s clocksync.Strategy,
	params clocksync.Params, job Job, op runtimes.ReduceOp) (*Result, error) {
	if job.Batches <= 0 {
		return nil, ErrNoRepetitions
	}
	if err := s.Init(params, job.NRep); err != nil {
		return nil, err
	}
	defer s.Cleanup()
	s.SyncClocks()

	var res *Result
	if c.Rank() == 0 {
		res = &Result{Job: job}
	}

	msg := make([]float64, job.MsgSize)
	tstart := make([]float64, job.NRep)
	tend := make([]float64, job.NRep)
	for b := 0; b < job.Batches; b++ {
		s.InitSync()
		for i := 0; i < job.NRep; i++ {
			s.StartSync()
			tstart[i] = s.Now()
			job.Op(c, msg)
			tend[i] = s.Now()
			s.StopSync()
		}

		var batch []float64
		var codes []int
		if s.Kind().Windowed() {
			batch, codes = runtimes.Global(c, 0, tstart, tend, s.ErrorCodes(), s.NormalizedTime)
		} else {
			batch = runtimes.Local(c, 0, tstart, tend, op)
			if batch != nil {
				codes = make([]int, len(batch))
			}
		}
		if res != nil {
			res.Runtimes = append(res.Runtimes, batch...)
			res.Codes = append(res.Codes, codes...)
			log.LogAttrs(ctx, slog.LevelDebug, "finished batch",
				slog.String("op", job.Name),
				slog.Int("batch", b),
				slog.Int("nrep", job.NRep))
		}
	}

	if res == nil {
		return nil, nil
	}
	res.Valid = runtimes.Compact(res.Runtimes, res.Codes)

	iters := benchMtrcs.Load().iterations
	iters.WithLabelValues(job.Name, "true").Add(float64(len(res.Valid)))
	iters.WithLabelValues(job.Name, "false").Add(float64(len(res.Runtimes) - len(res.Valid)))
	return res, nil
}
