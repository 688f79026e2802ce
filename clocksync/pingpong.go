package clocksync

import (
	"math"

	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

const maxPingPongs = 100

// A PingPonger estimates the clock offset between two
// ranks by bounding it from both sides with a fixed
// sequence of ping-pong messages.
type PingPonger struct {
	Comm  collcomm.Comm
	Clock timebase.Clock
}

// Offset runs the exchange between p1 and p2 and returns
// the estimated difference between the peer's clock and
// the caller's clock.
//
// Both ranks must call Offset with the same arguments.
func (p *PingPonger) Offset(p1, p2 int) float64 {
	var tdMin, tdMax float64
	switch p.Comm.Rank() {
	case p1:
		tdMin, tdMax = p.initiate(p2)
	case p2:
		tdMin, tdMax = p.respond(p1)
	default:
		panic("rank does not take part in the ping-pong")
	}
	return (tdMin + tdMax) / 2
}

func (p *PingPonger) initiate(peer int) (tdMin, tdMax float64) {
	sLast := p.Clock.Now()
	p.Comm.Send(peer, tagPingPong, []float64{sLast})
	tLast := p.Comm.Recv(peer, tagPingPong)[0]
	sNow := p.Clock.Now()
	p.Comm.Send(peer, tagPingPong, []float64{sNow})

	tdMin = tLast - sNow
	tdMax = tLast - sLast

	for i := 2; ; i++ {
		tLast = p.Comm.Recv(peer, tagPingPong)[0]
		sLast = sNow
		sNow = p.Clock.Now()

		tdMin = math.Max(tdMin, tLast-sNow)
		tdMax = math.Min(tdMax, tLast-sLast)

		if i == maxPingPongs {
			p.Comm.Send(peer, tagPingPong, nil)
			break
		}
		p.Comm.Send(peer, tagPingPong, []float64{sNow})
	}
	return
}

func (p *PingPonger) respond(peer int) (tdMin, tdMax float64) {
	sLast := p.Comm.Recv(peer, tagPingPong)[0]
	tLast := p.Clock.Now()
	p.Comm.Send(peer, tagPingPong, []float64{tLast})
	sNow := p.Comm.Recv(peer, tagPingPong)[0]
	tNow := p.Clock.Now()

	tdMin = math.Max(sLast-tLast, sNow-tNow)
	tdMax = sNow - tLast

	for {
		p.Comm.Send(peer, tagPingPong, []float64{tNow})
		msg := p.Comm.Recv(peer, tagPingPong)
		tLast = tNow
		tNow = p.Clock.Now()
		if len(msg) == 0 {
			break
		}
		sLast = msg[0]

		tdMin = math.Max(tdMin, sLast-tNow)
		tdMax = math.Min(tdMax, sLast-tLast)
	}
	return
}
