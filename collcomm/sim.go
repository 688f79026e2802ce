package collcomm

import "github.com/unixpickle/clockbench/simulator"

// headerSize is the simulated size of a message envelope,
// in bytes.
const headerSize = 16

type envelope struct {
	Tag  int
	Data []float64
}

// SimComm is a Comm for one node of a simulated network.
type SimComm struct {
	// Handle is the node's main Goroutine's handle on the
	// event loop.
	Handle *simulator.Handle

	// Port is the current node's port.
	Port *simulator.Port

	// Ports contains ports to all the nodes in the
	// network, including the current node.
	Ports []*simulator.Port

	// Network is the network connecting the nodes.
	Network simulator.Network

	// Clock is the node's local clock.
	Clock *simulator.DriftClock

	rank    int
	ranks   map[*simulator.Port]int
	pending map[matchKey][][]float64
}

// SpawnSim creates one node per clock spec, connects them
// through network, and calls f for each node in its own
// Goroutine on the loop.
func SpawnSim(loop *simulator.EventLoop, network simulator.Network, clocks []simulator.ClockSpec,
	f func(c *SimComm)) {
	ports := make([]*simulator.Port, len(clocks))
	ranks := map[*simulator.Port]int{}
	for i := range clocks {
		ports[i] = simulator.NewNode().Port(loop)
		ranks[ports[i]] = i
	}
	for i, spec := range clocks {
		rank := i
		spec := spec
		loop.Go(func(h *simulator.Handle) {
			f(&SimComm{
				Handle:  h,
				Port:    ports[rank],
				Ports:   ports,
				Network: network,
				Clock:   spec.Bind(h),
				rank:    rank,
				ranks:   ranks,
				pending: map[matchKey][][]float64{},
			})
		})
	}
}

// Rank returns the current node's index in the list of
// nodes.
func (s *SimComm) Rank() int {
	return s.rank
}

// Size gets the number of nodes.
func (s *SimComm) Size() int {
	return len(s.Ports)
}

// Send schedules a message to be sent to the destination.
func (s *SimComm) Send(dst, tag int, data []float64) {
	s.Network.Send(s.Handle, &simulator.Message{
		Source:  s.Port,
		Dest:    s.Ports[dst],
		Message: &envelope{Tag: tag, Data: copyVec(data)},
		Size:    float64(len(data)*8 + headerSize),
	})
}

// Recv receives the next vector from src with the tag.
func (s *SimComm) Recv(src, tag int) []float64 {
	key := matchKey{src: src, tag: tag}
	if queue := s.pending[key]; len(queue) > 0 {
		s.pending[key] = queue[1:]
		return queue[0]
	}
	for {
		msg := s.Port.Recv(s.Handle)
		env := msg.Message.(*envelope)
		incoming := matchKey{src: s.ranks[msg.Source], tag: env.Tag}
		if incoming == key {
			return env.Data
		}
		s.pending[incoming] = append(s.pending[incoming], env.Data)
	}
}

// Sleep advances the node by some virtual time.
func (s *SimComm) Sleep(seconds float64) {
	s.Handle.Sleep(seconds)
}
