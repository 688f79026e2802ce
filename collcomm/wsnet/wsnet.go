// Package wsnet implements collcomm.Comm on top of
// WebSocket connections, so that ranks can run as separate
// processes on separate machines.
//
// Every pair of ranks shares one connection. The higher
// rank dials the lower one.
package wsnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/unixpickle/clockbench/base/logbase"
	"github.com/unixpickle/clockbench/collcomm"
)

const (
	path = "/clockbench"

	// tagHello marks the first frame on a connection, which
	// carries the dialing rank.
	tagHello = math.MinInt32

	redialInterval = 100 * time.Millisecond
)

// Config describes one rank of a process group.
type Config struct {
	Rank int

	// Addrs holds the host:port every rank listens on,
	// indexed by rank.
	Addrs []string

	// Listener, if non-nil, is used instead of listening
	// on Addrs[Rank].
	Listener net.Listener

	Log *slog.Logger
}

// Comm is a collcomm.Comm backed by WebSockets.
type Comm struct {
	rank  int
	size  int
	log   *slog.Logger
	box   *collcomm.Mailbox
	peers []*peer

	server *http.Server
	closed atomic.Bool
}

type peer struct {
	lock sync.Mutex
	conn *websocket.Conn
}

// Dial connects this rank to every other rank.
//
// It blocks until all connections are established or ctx
// is done. Ranks may be started in any order.
func Dial(ctx context.Context, cfg Config) (*Comm, error) {
	size := len(cfg.Addrs)
	if cfg.Rank < 0 || cfg.Rank >= size {
		return nil, fmt.Errorf("rank %d out of range for %d addresses", cfg.Rank, size)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	c := &Comm{
		rank:  cfg.Rank,
		size:  size,
		log:   cfg.Log.With(slog.Int("rank", cfg.Rank)),
		box:   collcomm.NewMailbox(),
		peers: make([]*peer, size),
	}

	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", cfg.Addrs[cfg.Rank])
		if err != nil {
			return nil, fmt.Errorf("listen: %w", err)
		}
	}

	accepted := make(chan acceptedConn, size)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Peers are not browsers and send no Origin header.
			return r.Header.Get("Origin") == ""
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.log.Warn("upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
			return
		}
		src, err := readHello(conn)
		if err != nil {
			c.log.Warn("bad hello", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
			conn.Close()
			return
		}
		accepted <- acceptedConn{rank: src, conn: conn}
	})
	c.server = &http.Server{Handler: mux}
	go func() {
		if err := c.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("server failed", slog.Any("error", err))
		}
	}()

	for dst := 0; dst < cfg.Rank; dst++ {
		conn, err := c.dial(ctx, cfg.Addrs[dst])
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("dial rank %d: %w", dst, err)
		}
		c.peers[dst] = &peer{conn: conn}
	}

	for missing := size - 1 - cfg.Rank; missing > 0; {
		select {
		case a := <-accepted:
			if a.rank <= cfg.Rank || a.rank >= size || c.peers[a.rank] != nil {
				c.log.Warn("rejecting connection", slog.Int("peer", a.rank))
				a.conn.Close()
				continue
			}
			c.peers[a.rank] = &peer{conn: a.conn}
			missing--
		case <-ctx.Done():
			c.Close()
			return nil, ctx.Err()
		}
	}

	for src, p := range c.peers {
		if p != nil {
			go c.readLoop(src, p.conn)
		}
	}
	c.log.Debug("connected to process group", slog.Int("size", size))
	return c, nil
}

type acceptedConn struct {
	rank int
	conn *websocket.Conn
}

func (c *Comm) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err == nil {
			hello := encodeFrame(tagHello, []float64{float64(c.rank)})
			if err := conn.WriteMessage(websocket.BinaryMessage, hello); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		}
		c.log.Debug("dial failed, retrying", slog.String("addr", addr), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redialInterval):
		}
	}
}

func readHello(conn *websocket.Conn) (int, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	tag, data, err := decodeFrame(msg)
	if err != nil {
		return 0, err
	}
	if tag != tagHello || len(data) != 1 {
		return 0, errors.New("first frame is not a hello")
	}
	return int(data[0]), nil
}

func (c *Comm) readLoop(src int, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			logbase.Fatal(c.log, "connection lost", slog.Int("peer", src), slog.Any("error", err))
			return
		}
		tag, data, err := decodeFrame(msg)
		if err != nil {
			logbase.Fatal(c.log, "malformed frame", slog.Int("peer", src), slog.Any("error", err))
			return
		}
		c.box.Deliver(src, tag, data)
	}
}

// Rank returns the rank of this process.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of ranks.
func (c *Comm) Size() int {
	return c.size
}

// Send writes a message to dst.
//
// A failed write terminates the process.
func (c *Comm) Send(dst, tag int, data []float64) {
	if dst == c.rank {
		c.box.Deliver(dst, tag, append([]float64{}, data...))
		return
	}
	p := c.peers[dst]
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.conn.WriteMessage(websocket.BinaryMessage, encodeFrame(tag, data)); err != nil {
		logbase.Fatal(c.log, "send failed", slog.Int("peer", dst), slog.Any("error", err))
	}
}

// Recv waits for a message from src with tag.
//
// It panics if the Comm is closed while waiting.
func (c *Comm) Recv(src, tag int) []float64 {
	data, ok := c.box.Take(src, tag)
	if !ok {
		panic("wsnet: Recv on closed Comm")
	}
	return data
}

// Sleep pauses the calling Goroutine.
func (c *Comm) Sleep(seconds float64) {
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}

// Close says goodbye to every peer and stops the server.
func (c *Comm) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	goodbye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	for _, p := range c.peers {
		if p == nil {
			continue
		}
		p.conn.WriteControl(websocket.CloseMessage, goodbye, deadline)
		p.conn.Close()
	}
	c.box.Close()
	return c.server.Close()
}

func encodeFrame(tag int, data []float64) []byte {
	buf := make([]byte, 0, 4+8*len(data))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(tag)))
	for _, x := range data {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	}
	return buf
}

func decodeFrame(msg []byte) (int, []float64, error) {
	if len(msg) < 4 || (len(msg)-4)%8 != 0 {
		return 0, nil, fmt.Errorf("invalid frame length %d", len(msg))
	}
	tag := int(int32(binary.LittleEndian.Uint32(msg)))
	data := make([]float64, (len(msg)-4)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(msg[4+8*i:]))
	}
	return tag, data, nil
}
