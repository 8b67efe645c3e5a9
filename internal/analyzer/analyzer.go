// Package analyzer defines the analysis capability invoked by the alert
// worker and its two concrete implementations: rule-based threshold checks
// and statistical anomaly detection. Both are pure functions of one batch;
// the worker runs them concurrently and concatenates their candidates.
package analyzer

import (
	"context"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// Analyzer produces zero or more candidate alerts for one sensor data batch.
type Analyzer interface {
	// Analyze inspects the batch and returns candidate alerts. Returning an
	// empty slice means nothing noteworthy; an error marks the whole
	// sub-batch as failed and eligible for reprocessing.
	Analyze(ctx context.Context, batch *events.SensorDataBatch) ([]alerts.Alert, error)

	// Name identifies the analyzer in logs and metrics.
	Name() string
}

// typeForSensor maps a sensor reading type to the alert type it produces.
func typeForSensor(sensorType string) alerts.AlertType {
	switch sensorType {
	case events.SensorHeartRate, events.SensorTemperature:
		return alerts.TypePhysiological
	default:
		return alerts.TypeBiomechanical
	}
}

// peakValue returns the largest sample value in the batch. Threshold and
// anomaly rules key off the peak within the window, not the mean, because a
// single spike is what injures an athlete.
func peakValue(batch *events.SensorDataBatch) float64 {
	peak := 0.0
	first := true
	for _, r := range batch.Readings {
		for _, v := range r.Values {
			if first || v > peak {
				peak = v
				first = false
			}
		}
	}
	return peak
}
