package wsnet

import (
	"context"
	"math"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/unixpickle/clockbench/collcomm"
	"golang.org/x/sync/errgroup"
)

func TestFrames(t *testing.T) {
	for _, data := range [][]float64{nil, {1}, {-3.5, math.Inf(1), 1e-300}} {
		tag, decoded, err := decodeFrame(encodeFrame(-7, data))
		if err != nil {
			t.Fatal(err)
		}
		if tag != -7 {
			t.Errorf("bad tag %d", tag)
		}
		if !slices.Equal(decoded, data) && !(len(data) == 0 && len(decoded) == 0) {
			t.Errorf("expected %v but got %v", data, decoded)
		}
	}
	if _, _, err := decodeFrame([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Error("expected error for truncated frame")
	}
}

func TestCollectives(t *testing.T) {
	const n = 3

	listeners := make([]net.Listener, n)
	addrs := make([]string, n)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	comms := make([]*Comm, n)
	var g errgroup.Group
	for i := range comms {
		g.Go(func() error {
			c, err := Dial(ctx, Config{Rank: i, Addrs: addrs, Listener: listeners[i]})
			comms[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	results := make([][]float64, n)
	for i, c := range comms {
		g.Go(func() error {
			defer c.Close()
			bcast := collcomm.Bcast(c, 1, []float64{float64(i), 42})
			sum := collcomm.Reduce(c, 0, []float64{float64(i)}, collcomm.Sum)
			collcomm.Barrier(c)
			results[i] = append(bcast, sum...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if expected := []float64{1, 42, 3}; !slices.Equal(results[0], expected) {
		t.Errorf("rank 0: expected %v but got %v", expected, results[0])
	}
	for i := 1; i < n; i++ {
		if expected := []float64{1, 42}; !slices.Equal(results[i], expected) {
			t.Errorf("rank %d: expected %v but got %v", i, expected, results[i])
		}
	}
}

func TestSelfSend(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Dial(context.Background(), Config{Addrs: []string{l.Addr().String()}, Listener: l})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.Send(0, 3, []float64{1, 2})
	c.Send(0, 4, []float64{5})
	if msg := c.Recv(0, 4); !slices.Equal(msg, []float64{5}) {
		t.Errorf("unexpected message %v", msg)
	}
	if msg := c.Recv(0, 3); !slices.Equal(msg, []float64{1, 2}) {
		t.Errorf("unexpected message %v", msg)
	}
}
