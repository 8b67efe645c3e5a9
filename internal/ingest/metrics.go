// Package ingest implements the ingestion worker: it consumes raw sensor
// messages, accumulates them into time-window batches, persists batch history
// asynchronously, and republishes normalized batches downstream.
package ingest

import "time"

// MetricsRecorder defines the metrics operations needed by the worker.
// This interface allows for dependency injection and testing with fakes.
type MetricsRecorder interface {
	RecordProcessed(latency time.Duration)
	RecordError(kind string)
	RecordBufferUtilization(pct float64)
}

// Error kinds recorded against errors_total.
const (
	ErrKindInvalidFormat = "invalid_format"
	ErrKindPublish       = "publish"
	ErrKindPersistence   = "persistence"
)

// NoOpMetrics is a null-object implementation of MetricsRecorder.
// It does nothing, eliminating the need for nil checks.
type NoOpMetrics struct{}

// Compile-time check that NoOpMetrics implements MetricsRecorder.
var _ MetricsRecorder = (*NoOpMetrics)(nil)

// RecordProcessed does nothing.
func (n *NoOpMetrics) RecordProcessed(_ time.Duration) {}

// RecordError does nothing.
func (n *NoOpMetrics) RecordError(_ string) {}

// RecordBufferUtilization does nothing.
func (n *NoOpMetrics) RecordBufferUtilization(_ float64) {}
