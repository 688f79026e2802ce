package clocksync

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unixpickle/clockbench/base/metrics"
)

type syncMetrics struct {
	calibrations       *prometheus.CounterVec
	calibrationSeconds *prometheus.GaugeVec
	windowErrors       *prometheus.CounterVec
	rtt                prometheus.Gauge
}

var syncMtrcs atomic.Pointer[syncMetrics]

func newSyncMetrics() *syncMetrics {
	return &syncMetrics{
		calibrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SyncCalibrationsN,
			Help: metrics.SyncCalibrationsH,
		}, []string{"strategy"}),
		calibrationSeconds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.SyncCalibrationSecondsN,
			Help: metrics.SyncCalibrationSecondsH,
		}, []string{"strategy"}),
		windowErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SyncWindowErrorsN,
			Help: metrics.SyncWindowErrorsH,
		}, []string{"strategy", "flag"}),
		rtt: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.SyncRTTSecondsN,
			Help: metrics.SyncRTTSecondsH,
		}),
	}
}

func init() {
	syncMtrcs.Store(newSyncMetrics())
}
