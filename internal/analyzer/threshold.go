package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// Threshold holds the per-metric warning and critical limits.
type Threshold struct {
	Warning         float64
	Critical        float64
	Location        string
	Recommendations []string
}

// DefaultThresholds returns the calibrated per-metric limits used when no
// external configuration overrides them.
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		events.SensorForce: {
			Warning:         700,
			Critical:        850,
			Location:        "lower extremity",
			Recommendations: []string{"Reduce load", "Review landing mechanics"},
		},
		events.SensorAcceleration: {
			Warning:  8,
			Critical: 12,
			Location: "torso",
		},
		events.SensorEMG: {
			Warning:         80,
			Critical:        95,
			Location:        "muscle group",
			Recommendations: []string{"Schedule recovery session"},
		},
		events.SensorHeartRate: {
			Warning:         185,
			Critical:        205,
			Recommendations: []string{"Reduce intensity immediately"},
		},
		events.SensorTemperature: {
			Warning:  38.5,
			Critical: 40.0,
		},
	}
}

// ThresholdAnalyzer emits rule-based alerts when a batch's peak value
// breaches a configured per-metric threshold.
type ThresholdAnalyzer struct {
	thresholds map[string]Threshold
}

// NewThresholdAnalyzer creates a threshold analyzer. A nil thresholds map
// falls back to DefaultThresholds.
func NewThresholdAnalyzer(thresholds map[string]Threshold) *ThresholdAnalyzer {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &ThresholdAnalyzer{thresholds: thresholds}
}

// Name identifies the analyzer in logs and metrics.
func (a *ThresholdAnalyzer) Name() string {
	return "threshold"
}

// Analyze checks the batch's peak value against the metric's limits. A value
// above the critical limit yields one CRITICAL alert; above the warning limit
// (but not the critical one) yields one HIGH alert.
func (a *ThresholdAnalyzer) Analyze(_ context.Context, batch *events.SensorDataBatch) ([]alerts.Alert, error) {
	th, ok := a.thresholds[batch.SensorType]
	if !ok {
		// No rule configured for this metric.
		return nil, nil
	}

	peak := peakValue(batch)
	if peak <= th.Warning {
		return nil, nil
	}

	severity := alerts.SeverityHigh
	limit := th.Warning
	if peak > th.Critical {
		severity = alerts.SeverityCritical
		limit = th.Critical
	}

	ts := time.UnixMilli(batch.TimestampMs).UTC()
	alert, err := alerts.New(alerts.NewAlertParams{
		Type:      typeForSensor(batch.SensorType),
		Severity:  severity,
		SessionID: batch.SessionID,
		Message: fmt.Sprintf("%s reading %.1f exceeded %s threshold %.1f",
			batch.SensorType, peak, severityWord(severity), limit),
		Details: alerts.Details{
			Metric:           batch.SensorType,
			Threshold:        limit,
			CurrentValue:     peak,
			Location:         th.Location,
			ConfidenceScore:  1.0, // rule-based detections are definitive
			Recommendations:  th.Recommendations,
			SourceSensorData: batch,
		},
		Timestamp:         ts,
		BatchTimestamp:    ts,
		CriticalThreshold: th.Critical,
	})
	if err != nil {
		return nil, fmt.Errorf("threshold analyzer failed to build alert: %w", err)
	}

	slog.Debug("Threshold breach detected",
		"sensor_type", batch.SensorType,
		"session_id", batch.SessionID,
		"peak", peak,
		"severity", severity,
	)

	return []alerts.Alert{*alert}, nil
}

func severityWord(s alerts.Severity) string {
	if s == alerts.SeverityCritical {
		return "critical"
	}
	return "warning"
}
