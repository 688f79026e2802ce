package clocksync

import "testing"

type steppingClock struct {
	time float64
	step float64
}

func (s *steppingClock) Now() float64 {
	s.time += s.step
	return s.time
}

func TestWindowBegin(t *testing.T) {
	t.Run("Wait", func(t *testing.T) {
		clock := &steppingClock{step: 0.5}
		w := &window{size: 1, now: clock.Now, start: 2}
		if flags := w.begin(); flags != 0 {
			t.Errorf("unexpected flags %d", flags)
		}
		if clock.time != 2 {
			t.Errorf("woke up at %f", clock.time)
		}
	})
	t.Run("Late", func(t *testing.T) {
		clock := &steppingClock{time: 10, step: 0.5}
		w := &window{size: 1, now: clock.Now, start: 2}
		if flags := w.begin(); flags != StartTimeHasPassed {
			t.Errorf("unexpected flags %d", flags)
		}
	})
}

func TestWindowEnd(t *testing.T) {
	clock := &steppingClock{step: 0.25}
	w := &window{size: 1, now: clock.Now, start: 0}
	for i := 0; i < 10; i++ {
		before := w.start
		flags := w.end()
		if w.start != before+w.size {
			t.Fatalf("iteration %d: start moved from %f to %f", i, before, w.start)
		}
		late := clock.time > before+w.size
		if late != (flags == WindowExpired) {
			t.Errorf("iteration %d: time %f window %f flags %d", i, clock.time, before, flags)
		}
		if i%3 == 0 {
			clock.time += 3
		}
	}
}
