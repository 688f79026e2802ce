package collcomm

import "sync"

// A Mailbox buffers incoming messages for one rank and
// hands them out by (source, tag).
//
// It is safe to call Deliver from many Goroutines.
type Mailbox struct {
	lock    sync.Mutex
	cond    *sync.Cond
	pending map[matchKey][][]float64
	closed  bool
}

// NewMailbox creates an empty Mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{pending: map[matchKey][][]float64{}}
	m.cond = sync.NewCond(&m.lock)
	return m
}

// Deliver queues a message from src.
//
// Messages delivered after Close are dropped.
func (m *Mailbox) Deliver(src, tag int, data []float64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return
	}
	key := matchKey{src: src, tag: tag}
	m.pending[key] = append(m.pending[key], data)
	m.cond.Broadcast()
}

// Take blocks until a message from src with tag is
// available and removes it.
//
// The second return value is false if the Mailbox was
// closed before a matching message arrived.
func (m *Mailbox) Take(src, tag int) ([]float64, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	key := matchKey{src: src, tag: tag}
	for len(m.pending[key]) == 0 {
		if m.closed {
			return nil, false
		}
		m.cond.Wait()
	}
	queue := m.pending[key]
	msg := queue[0]
	if len(queue) == 1 {
		delete(m.pending, key)
	} else {
		m.pending[key] = queue[1:]
	}
	return msg, true
}

// Close wakes up every blocked Take.
func (m *Mailbox) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	m.cond.Broadcast()
}
