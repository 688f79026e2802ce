// Package metrics holds the names and help strings of the
// exported Prometheus metrics.
package metrics

const (
	SyncCalibrationsN = "clockbench_sync_calibrations_total"
	SyncCalibrationsH = "Total number of clock synchronizations performed, by strategy"

	SyncCalibrationSecondsN = "clockbench_sync_calibration_seconds"
	SyncCalibrationSecondsH = "Local duration of the most recent clock synchronization, by strategy"

	SyncWindowErrorsN = "clockbench_sync_window_errors_total"
	SyncWindowErrorsH = "Total number of measurement window violations, by strategy and kind"

	SyncRTTSecondsN = "clockbench_sync_rtt_seconds"
	SyncRTTSecondsH = "Most recent outlier-filtered round-trip time estimate"

	BenchIterationsN = "clockbench_bench_iterations_total"
	BenchIterationsH = "Total number of measured iterations, by operation and validity"
)
