package collcomm

import (
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

var errAborted = errors.New("collcomm: process group aborted")

// LocalComm is a Comm for a rank running as a Goroutine
// in the current process, using the real-time clock.
type LocalComm struct {
	rank  int
	boxes []*Mailbox
}

// RunLocal runs f for n ranks in parallel and waits for
// all of them.
//
// If any rank fails, the group is aborted. Ranks blocked
// in Recv are unwound and the failing rank's error is
// returned.
func RunLocal(n int, f func(c *LocalComm) error) error {
	boxes := make([]*Mailbox, n)
	for i := range boxes {
		boxes[i] = NewMailbox()
	}
	abort := func() {
		for _, b := range boxes {
			b.Close()
		}
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		c := &LocalComm{rank: i, boxes: boxes}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil && r != errAborted {
					abort()
					panic(r)
				}
			}()
			if err := f(c); err != nil {
				abort()
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Rank returns the rank of the Goroutine.
func (l *LocalComm) Rank() int {
	return l.rank
}

// Size returns the number of ranks.
func (l *LocalComm) Size() int {
	return len(l.boxes)
}

// Send copies data into the destination's mailbox.
func (l *LocalComm) Send(dst, tag int, data []float64) {
	l.boxes[dst].Deliver(l.rank, tag, copyVec(data))
}

// Recv waits for a message from src with tag.
func (l *LocalComm) Recv(src, tag int) []float64 {
	data, ok := l.boxes[l.rank].Take(src, tag)
	if !ok {
		panic(errAborted)
	}
	return data
}

// Sleep pauses the Goroutine.
func (l *LocalComm) Sleep(seconds float64) {
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}
