// Package alertworker implements the alert-generation worker: it consumes
// normalized sensor batches across partitions, runs the analyzers under a
// circuit breaker, persists generated alerts, and hands them to distribution
// before committing consumed offsets (persist-then-commit, at-least-once).
package alertworker

import "time"

// MetricsRecorder defines the metrics operations needed by the worker.
// This interface allows for dependency injection and testing with fakes.
type MetricsRecorder interface {
	RecordProcessed(latency time.Duration)
	RecordError(kind string)
	AddAlertsGenerated(n int)
}

// Error kinds recorded against errors_total.
const (
	ErrKindAnalyzer     = "analyzer"
	ErrKindPersistence  = "persistence"
	ErrKindCircuitOpen  = "circuit_open"
	ErrKindValidation   = "validation"
	ErrKindDistribution = "distribution"
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

// AddAlertsGenerated does nothing.
func (n *NoOpMetrics) AddAlertsGenerated(_ int) {}
