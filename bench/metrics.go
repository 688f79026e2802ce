package bench

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unixpickle/clockbench/base/metrics"
)

type benchMetrics struct {
	iterations *prometheus.CounterVec
}

var benchMtrcs atomic.Pointer[benchMetrics]

func init() {
	benchMtrcs.Store(&benchMetrics{
		iterations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BenchIterationsN,
			Help: metrics.BenchIterationsH,
		}, []string{"op", "valid"}),
	})
}
