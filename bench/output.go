package bench

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/unixpickle/clockbench/clocksync"
	"github.com/unixpickle/clockbench/runtimes"
)

// A Header describes a benchmark run.
type Header struct {
	RunID    uuid.UUID
	NRep     int
	Clock    string
	Strategy clocksync.Strategy

	// Summary selects the column layout of WriteResults.
	Summary bool

	// Columns, if set, replaces the column names.
	Columns string
}

// WriteHeader prints the run's "#@key=value" lines and the
// column names of the results.
func WriteHeader(w io.Writer, h Header) error {
	if _, err := fmt.Fprintf(w, "#@nrep=%d\n#@run_id=%s\n#@clock=%s\n", h.NRep, h.RunID,
		h.Clock); err != nil {
		return err
	}
	if err := h.Strategy.WriteInfo(w); err != nil {
		return err
	}
	columns := "test nrep msize errorcode runtime_sec"
	if h.Summary {
		columns = "test msize total_nrep valid_nrep mean_sec median_sec min_sec max_sec"
	}
	if h.Columns != "" {
		columns = h.Columns
	}
	_, err := fmt.Fprintln(w, columns)
	return err
}

// WriteResults prints one row per iteration, or a single
// summary row of the valid iterations.
func WriteResults(w io.Writer, res *Result, summary bool) error {
	if summary {
		s := runtimes.Summarize(res.Valid)
		_, err := fmt.Fprintf(w, "%s %d %d %d %.10f %.10f %.10f %.10f\n", res.Job.Name,
			res.Job.MsgSize, len(res.Runtimes), len(res.Valid), s.Mean, s.Median, s.Min, s.Max)
		return err
	}
	for i, r := range res.Runtimes {
		_, err := fmt.Fprintf(w, "%s %d %d %d %.10f\n", res.Job.Name, i, res.Job.MsgSize,
			res.Codes[i], r)
		if err != nil {
			return err
		}
	}
	return nil
}
