// Package predict measures a job until its runtimes are
// stable enough, instead of for a fixed number of
// repetitions.
//
// Batches grow after every round that fails a Criterion:
// the first batch has MinNRep iterations, and the k-th
// increment is Stride*2^k. Measurement stops once every
// Criterion holds or MaxNRep iterations are done.
package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/unixpickle/clockbench/bench"
	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/runtimes"
)

const (
	DefaultThreshold = 0.02
	DefaultWindow    = 10
)

var ErrInvalidConfig = errors.New("invalid prediction config")

// A Criterion holds when its Method's value is below
// Threshold.
type Criterion struct {
	Method    Method
	Threshold float64

	// Window is the number of prefixes the CoV methods
	// compare. RSE ignores it.
	Window int
}

// Check computes the criterion's value and whether it
// holds. The value is NaN when it cannot be computed yet.
func (c Criterion) Check(runtimes []float64) (float64, bool) {
	value, ok := c.Method.Value(runtimes, c.Window)
	if !ok {
		return math.NaN(), false
	}
	return value, value < c.Threshold
}

type Config struct {
	MinNRep int
	MaxNRep int
	Stride  int

	Criteria []Criterion
}

// Validate checks that the batch sizes are usable and that
// there is at least one well-formed Criterion.
func (c Config) Validate() error {
	if c.MinNRep <= 0 {
		return fmt.Errorf("%w: minimum repetitions must be positive, got %d", ErrInvalidConfig,
			c.MinNRep)
	}
	if c.MaxNRep < 0 || c.Stride < 0 {
		return fmt.Errorf("%w: negative maximum (%d) or stride (%d)", ErrInvalidConfig, c.MaxNRep,
			c.Stride)
	}
	if len(c.Criteria) == 0 {
		return fmt.Errorf("%w: no criteria", ErrInvalidConfig)
	}
	for _, crit := range c.Criteria {
		if !(crit.Threshold > 0) {
			return fmt.Errorf("%w: %s threshold must be positive, got %v", ErrInvalidConfig,
				crit.Method, crit.Threshold)
		}
		if crit.Method != RSE && crit.Window < 2 {
			return fmt.Errorf("%w: %s window must be at least 2, got %d", ErrInvalidConfig,
				crit.Method, crit.Window)
		}
	}
	return nil
}

// maxNRep is MaxNRep, defaulting to the job's NRep and
// never below MinNRep.
func (c Config) maxNRep(job bench.Job) int {
	n := c.MaxNRep
	if n == 0 {
		n = job.NRep
	}
	if n < c.MinNRep {
		n = c.MinNRep
	}
	return n
}

// A Result is a bench.Result together with the final
// value of every Criterion.
type Result struct {
	bench.Result

	// Values is parallel to Config.Criteria.
	Values []float64

	// Rounds is the number of batches measured.
	Rounds int

	// Converged is set if every Criterion held at the end.
	Converged bool
}

// Run measures a job in growing batches until cfg is
// satisfied on rank 0.
//
// Like bench.Run, the Strategy must be fresh, every rank
// must call Run, and the Result is nil except on rank 0.
// Windows continue across batches; job.NRep and
// job.Batches only provide the default maximum.
func Run(ctx context.Context, log *slog.Logger, c collcomm.Comm, s clocksync.Strategy,
	params clocksync.Params, job bench.Job, op runtimes.ReduceOp, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxNRep := cfg.maxNRep(job)
	if err := s.Init(params, maxNRep); err != nil {
		return nil, err
	}
	defer s.Cleanup()
	s.SyncClocks()
	s.InitSync()

	var res *Result
	if c.Rank() == 0 {
		res = &Result{Result: bench.Result{Job: job}}
	}

	msg := make([]float64, job.MsgSize)
	tstart := make([]float64, maxNRep)
	tend := make([]float64, maxNRep)
	nrep, stride := cfg.MinNRep, cfg.Stride
	var done int
	for {
		for i := done; i < done+nrep; i++ {
			s.StartSync()
			tstart[i] = s.Now()
			job.Op(c, msg)
			tend[i] = s.Now()
			s.StopSync()
		}
		batch, codes := batchRuntimes(c, s, op, tstart[done:done+nrep], tend[done:done+nrep], done)
		done += nrep

		var stop float64
		if res != nil {
			res.Rounds++
			res.Runtimes = append(res.Runtimes, batch...)
			res.Codes = append(res.Codes, codes...)
			res.Valid = runtimes.Compact(res.Runtimes, res.Codes)
			res.Values, res.Converged = check(cfg.Criteria, res.Valid)
			if res.Converged {
				stop = 1
			}
			log.LogAttrs(ctx, slog.LevelDebug, "finished prediction round",
				slog.String("op", job.Name),
				slog.Int("nrep", nrep),
				slog.Int("valid", len(res.Valid)),
				slog.Any("values", res.Values))
		}

		if collcomm.Bcast(c, 0, []float64{stop})[0] != 0 {
			break
		}
		nrep += stride
		stride *= 2
		if done+nrep > maxNRep {
			nrep = maxNRep - done
		}
		if done >= maxNRep {
			break
		}
	}

	if res == nil {
		return nil, nil
	}
	res.Job.NRep = done
	res.Job.Batches = res.Rounds
	return res, nil
}

func batchRuntimes(c collcomm.Comm, s clocksync.Strategy, op runtimes.ReduceOp,
	tstart, tend []float64, offset int) ([]float64, []int) {
	if !s.Kind().Windowed() {
		batch := runtimes.Local(c, 0, tstart, tend, op)
		if batch == nil {
			return nil, nil
		}
		return batch, make([]int, len(batch))
	}
	codes := s.ErrorCodes()
	if codes != nil {
		codes = codes[offset : offset+len(tstart)]
	}
	return runtimes.Global(c, 0, tstart, tend, codes, s.NormalizedTime)
}

func check(criteria []Criterion, valid []float64) ([]float64, bool) {
	values := make([]float64, len(criteria))
	all := true
	for i, crit := range criteria {
		var ok bool
		values[i], ok = crit.Check(valid)
		all = all && ok
	}
	return values, all
}

// Columns names the fields of the rows WriteResults prints.
const Columns = "test nrep msize mean_runtime_sec median_runtime_sec pred_method pred_value"

// WriteInfo prints cfg as "#@key=value" lines.
func WriteInfo(w io.Writer, cfg Config) error {
	_, err := fmt.Fprintf(w, "#@pred_nrep_min=%d\n#@pred_nrep_max=%d\n#@pred_nrep_stride=%d\n",
		cfg.MinNRep, cfg.MaxNRep, cfg.Stride)
	if err != nil {
		return err
	}
	for _, crit := range cfg.Criteria {
		_, err := fmt.Fprintf(w, "#@pred_method=%s (thres=%f, win=%d)\n", crit.Method,
			crit.Threshold, crit.Window)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteResults prints one row per Criterion, each with the
// number of valid runtimes and their mean and median.
func WriteResults(w io.Writer, res *Result, cfg Config) error {
	s := runtimes.Summarize(res.Valid)
	for i, crit := range cfg.Criteria {
		_, err := fmt.Fprintf(w, "%s %d %d %.10f %.10f %s %.10f\n", res.Job.Name, len(res.Valid),
			res.Job.MsgSize, s.Mean, s.Median, crit.Method, res.Values[i])
		if err != nil {
			return err
		}
	}
	return nil
}
