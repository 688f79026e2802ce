// Package allreduce implements algorithms for summing or
// maxing vectors across every rank of a process group.
package allreduce

import "github.com/unixpickle/clockbench/collcomm"

// Allreducer is an algorithm that can apply a ReduceFn to
// vectors that are distributed across ranks.
//
// Every rank must call Allreduce with vectors of the same
// length.
type Allreducer interface {
	Allreduce(c collcomm.Comm, data []float64, fn collcomm.ReduceFn) []float64
}

// Tags used by the allreducers.
// They are distinct from the collcomm collective tags, so
// an Allreduce may be interleaved with other traffic.
const (
	tagNaive = 1<<20 + iota
	tagTreeUp
	tagTreeDown
)
