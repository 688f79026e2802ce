package simulator

import (
	"math"
	"sync"
)

// A Node represents a machine on a virtual network.
type Node struct {
	unused int
}

// NewNode creates a new, unique Node.
func NewNode() *Node {
	return &Node{}
}

// Port creates a new Port connected to the Node.
func (n *Node) Port(loop *EventLoop) *Port {
	return &Port{Node: n, Incoming: loop.Stream()}
}

// A Port identifies a point of communication on a Node.
// Data is sent from Ports and received on Ports.
type Port struct {
	// The Node to which the Port is attached.
	Node *Node

	// A stream of *Message objects.
	Incoming *EventStream
}

// Recv receives the next message.
func (p *Port) Recv(h *Handle) *Message {
	return h.Poll(p.Incoming).Message.(*Message)
}

// A Message is a chunk of data sent between nodes over a
// network.
type Message struct {
	Source  *Port
	Dest    *Port
	Message interface{}
	Size    float64
}

// A Network represents an abstract way of communicating
// between nodes.
type Network interface {
	// Send message objects from one node to another.
	// The message will arrive on the receiving port's
	// incoming EventStream if the communication is
	// successful.
	//
	// This is a non-blocking operation.
	Send(h *Handle, msgs ...*Message)
}

// An OrderedNetwork delivers messages along every
// (source, destination) link in the order they were sent.
//
// Each message pays a fixed one-way Latency, a uniformly
// random extra delay of up to Jitter, and a transmission
// time of Size/Rate.
// Links are independent: traffic from one sender does not
// slow down traffic from another.
type OrderedNetwork struct {
	Latency float64
	Jitter  float64
	Rate    float64

	lock      sync.Mutex
	nextTimes map[link]float64
}

type link struct {
	src  *Node
	dest *Node
}

// NewOrderedNetwork creates an OrderedNetwork.
//
// A rate of zero means transmission is instantaneous.
func NewOrderedNetwork(latency, jitter, rate float64) *OrderedNetwork {
	return &OrderedNetwork{
		Latency:   latency,
		Jitter:    jitter,
		Rate:      rate,
		nextTimes: map[link]float64{},
	}
}

// Send sends the messages over the network in order.
func (o *OrderedNetwork) Send(h *Handle, msgs ...*Message) {
	o.lock.Lock()
	defer o.lock.Unlock()

	curTime := h.Time()
	for _, msg := range msgs {
		delay := o.Latency + h.Float64()*o.Jitter
		if o.Rate > 0 {
			delay += msg.Size / o.Rate
		}
		arrival := curTime + delay

		l := link{src: msg.Source.Node, dest: msg.Dest.Node}
		if last, ok := o.nextTimes[l]; ok && arrival <= last {
			// Never overtake or tie with an earlier message
			// on the same link.
			arrival = math.Nextafter(last, math.Inf(1))
		}
		o.nextTimes[l] = arrival
		h.ScheduleAt(msg.Dest.Incoming, msg, arrival)
	}
}
