package bench

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/collcomm/allreduce"
)

// An Op is a measured operation.
//
// Every rank calls the Op with a message of the job's
// size.
type Op func(c collcomm.Comm, msg []float64)

var ops = map[string]Op{
	"noop": func(c collcomm.Comm, msg []float64) {},
	"barrier": func(c collcomm.Comm, msg []float64) {
		collcomm.Barrier(c)
	},
	"bcast": func(c collcomm.Comm, msg []float64) {
		collcomm.Bcast(c, 0, msg)
	},
	"reduce": func(c collcomm.Comm, msg []float64) {
		collcomm.Reduce(c, 0, msg, collcomm.Sum)
	},
	"allreduce": func(c collcomm.Comm, msg []float64) {
		allreduce.TreeAllreducer{}.Allreduce(c, msg, collcomm.Sum)
	},
	"allreduce_naive": func(c collcomm.Comm, msg []float64) {
		allreduce.NaiveAllreducer{}.Allreduce(c, msg, collcomm.Sum)
	},
}

const sleepPrefix = "sleep:"

// OpNames lists the operations LookupOp knows, besides
// "sleep:<seconds>".
func OpNames() []string {
	var names []string
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupOp finds an operation by name.
//
// The name "sleep:<seconds>" makes every rank sleep; this
// needs a Comm that implements collcomm.Sleeper.
func LookupOp(name string) (Op, error) {
	if op, ok := ops[name]; ok {
		return op, nil
	}
	if strings.HasPrefix(name, sleepPrefix) {
		secs, err := strconv.ParseFloat(strings.TrimPrefix(name, sleepPrefix), 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("bad sleep duration in %q", name)
		}
		return func(c collcomm.Comm, msg []float64) {
			c.(collcomm.Sleeper).Sleep(secs)
		}, nil
	}
	return nil, fmt.Errorf("unknown operation: %q", name)
}
