// Package collcomm implements a small message-passing
// process group with MPI-style point-to-point matching and
// tree-based collective operations.
package collcomm

// A Comm is one rank's view of a process group.
//
// Sends are eager and never block.
// Recv blocks until a message with the given source and
// tag arrives; messages from one source with one tag are
// received in the order they were sent, and messages with
// other tags are buffered until someone asks for them.
//
// A Comm is used by a single Goroutine.
type Comm interface {
	Rank() int
	Size() int
	Send(dst, tag int, data []float64)
	Recv(src, tag int) []float64
}

// A Sleeper is a Comm that can pause its rank for some
// amount of (possibly virtual) time.
type Sleeper interface {
	Sleep(seconds float64)
}

// Tags below zero are reserved for collectives.
const (
	tagBarrierUp = -1 - iota
	tagBarrierDown
	tagBcast
	tagScatter
	tagGather
	tagReduce
)

type matchKey struct {
	src int
	tag int
}

func copyVec(v []float64) []float64 {
	return append([]float64{}, v...)
}
