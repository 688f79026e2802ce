package allreduce

import "github.com/unixpickle/clockbench/collcomm"

// A NaiveAllreducer sends every vector from every rank to
// every other rank.
type NaiveAllreducer struct{}

// Allreduce runs fn() on all of the ranks' vectors on
// every rank.
func (n NaiveAllreducer) Allreduce(c collcomm.Comm, data []float64,
	fn collcomm.ReduceFn) []float64 {
	gatheredVecs := make([][]float64, c.Size())
	for i := range gatheredVecs {
		if i != c.Rank() {
			c.Send(i, tagNaive, data)
		}
	}
	for i := range gatheredVecs {
		if i == c.Rank() {
			gatheredVecs[i] = data
		} else {
			gatheredVecs[i] = c.Recv(i, tagNaive)
		}
	}
	return fn(gatheredVecs...)
}
