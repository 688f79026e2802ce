//go:build !amd64

package timebase

import "time"

var cycleEpoch = time.Now()

func readCycles() uint64 {
	return uint64(time.Since(cycleEpoch).Nanoseconds())
}
