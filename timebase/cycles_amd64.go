//go:build amd64

package timebase

// rdtsc reads the time stamp counter.
func rdtsc() uint64

func readCycles() uint64 {
	return rdtsc()
}
