package editor

import "time"

// MetricsCollector receives the outcome of session operations. The
// Prometheus implementation lives in internal/metrics.
type MetricsCollector interface {
	// RecordCommit is called after every Commit or WriteTo that reached the
	// write stage. bytes is what was written to disk.
	RecordCommit(mode Mode, bytes int64, duration time.Duration, err error)
	// RecordFailure is called for every StageError a session returns.
	RecordFailure(stage Stage)
}

// NoopMetricsCollector discards everything.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(Mode, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordFailure(Stage)                            {}
