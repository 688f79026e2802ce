package clocksync

import (
	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// skampiSync measures every rank's offset to rank 0 with
// bounded ping-pongs, one rank at a time.
// It does not model drift.
type skampiSync struct {
	modelSync
	pingPong PingPonger
}

func newSKaMPISync(cfg Config, comm collcomm.Comm, clock timebase.Clock) *skampiSync {
	s := &skampiSync{pingPong: PingPonger{Comm: comm, Clock: clock}}
	s.bind(comm, clock)
	return s
}

func (s *skampiSync) calibrate() {
	rank := s.comm.Rank()
	for p := 1; p < s.comm.Size(); p++ {
		collcomm.Barrier(s.comm)
		if rank == 0 {
			s.pingPong.Offset(0, p)
		} else if rank == p {
			offset := s.pingPong.Offset(0, p)
			s.model = LinearModel{Intercept: -offset}
		}
	}
	collcomm.Barrier(s.comm)
}

func (s *skampiSync) writeInfo(w *infoWriter) {
	w.str("sync", KindSKaMPI.String())
	s.writeWindowInfo(w)
	w.float("wait_time_s", s.params.WaitTime)
}
