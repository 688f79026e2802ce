package simulator

import (
	"math"
	"testing"
)

func TestDriftClock(t *testing.T) {
	loop := NewEventLoop()
	var readings []float64
	loop.Go(func(h *Handle) {
		clock := ClockSpec{Offset: 10, Drift: 0.5, ReadCost: 1}.Bind(h)
		readings = append(readings, clock.Now(), clock.Now())
		if clock.At(4) != 16 {
			t.Errorf("unexpected reading at 4: %f", clock.At(4))
		}
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if readings[0] != 11.5 || readings[1] != 13 {
		t.Errorf("unexpected readings: %v", readings)
	}
	if loop.Time() != 2 {
		t.Errorf("reads should cost 2 units of time but took %f", loop.Time())
	}
}

func TestRandomClocks(t *testing.T) {
	loop := NewEventLoopSeed(42)
	specs := RandomClocks(loop, 16, 1e-3, 1e-6, 1e-8)
	for i, spec := range specs {
		if math.Abs(spec.Offset) > 1e-3 || math.Abs(spec.Drift) > 1e-6 {
			t.Errorf("clock %d out of range: %+v", i, spec)
		}
		if spec.ReadCost != 1e-8 {
			t.Errorf("clock %d has read cost %f", i, spec.ReadCost)
		}
	}
}
