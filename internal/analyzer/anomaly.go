package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

const (
	// defaultZScoreThreshold is how many standard deviations from the window
	// mean a sample must be to count as anomalous.
	defaultZScoreThreshold = 3.0
	// defaultQualityFloor is the minimum batch quality score analyzed; below
	// it the signal is too noisy to score.
	defaultQualityFloor = 40.0
)

// AnomalyAnalyzer flags samples that deviate sharply from the batch window's
// distribution. The scoring internals are deliberately simple (z-score over
// the window); the worker only depends on the Analyzer contract, so a richer
// model can be swapped in at startup.
type AnomalyAnalyzer struct {
	zThreshold   float64
	qualityFloor float64
}

// NewAnomalyAnalyzer creates an anomaly analyzer with the default z-score
// threshold and quality floor.
func NewAnomalyAnalyzer() *AnomalyAnalyzer {
	return &AnomalyAnalyzer{
		zThreshold:   defaultZScoreThreshold,
		qualityFloor: defaultQualityFloor,
	}
}

// Name identifies the analyzer in logs and metrics.
func (a *AnomalyAnalyzer) Name() string {
	return "anomaly"
}

// Analyze scores the batch's samples against the window distribution and
// emits at most one alert for the strongest outlier. Confidence grows with
// the deviation beyond the threshold and is clamped to [0,1].
func (a *AnomalyAnalyzer) Analyze(_ context.Context, batch *events.SensorDataBatch) ([]alerts.Alert, error) {
	if batch.QualityScore < a.qualityFloor {
		slog.Debug("Skipping low-quality batch",
			"sensor_id", batch.SensorID,
			"quality_score", batch.QualityScore,
		)
		return nil, nil
	}

	samples := flatten(batch)
	if len(samples) < 3 {
		// Too few samples for a meaningful distribution.
		return nil, nil
	}

	mean, stddev := meanStddev(samples)
	if stddev == 0 {
		return nil, nil
	}

	// Find the strongest outlier in the window.
	var worst float64
	var worstZ float64
	for _, v := range samples {
		z := math.Abs(v-mean) / stddev
		if z > worstZ {
			worstZ = z
			worst = v
		}
	}
	if worstZ < a.zThreshold {
		return nil, nil
	}

	confidence := math.Min(1.0, (worstZ-a.zThreshold)/a.zThreshold+0.5)
	severity := alerts.SeverityLow
	switch {
	case confidence >= 0.8:
		severity = alerts.SeverityHigh
	case confidence >= 0.5:
		severity = alerts.SeverityMedium
	}

	ts := time.UnixMilli(batch.TimestampMs).UTC()
	alert, err := alerts.New(alerts.NewAlertParams{
		Type:      typeForSensor(batch.SensorType),
		Severity:  severity,
		SessionID: batch.SessionID,
		Message: fmt.Sprintf("%s sample %.1f deviates %.1f standard deviations from window mean %.1f",
			batch.SensorType, worst, worstZ, mean),
		Details: alerts.Details{
			Metric:           batch.SensorType,
			Threshold:        mean + a.zThreshold*stddev,
			CurrentValue:     worst,
			ConfidenceScore:  confidence,
			Recommendations:  []string{"Review recent movement pattern"},
			SourceSensorData: batch,
		},
		Timestamp:      ts,
		BatchTimestamp: ts,
	})
	if err != nil {
		return nil, fmt.Errorf("anomaly analyzer failed to build alert: %w", err)
	}

	slog.Debug("Anomaly detected",
		"sensor_type", batch.SensorType,
		"session_id", batch.SessionID,
		"z_score", worstZ,
		"confidence", confidence,
	)

	return []alerts.Alert{*alert}, nil
}

func flatten(batch *events.SensorDataBatch) []float64 {
	var out []float64
	for _, r := range batch.Readings {
		out = append(out, r.Values...)
	}
	return out
}

func meanStddev(samples []float64) (float64, float64) {
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	return mean, math.Sqrt(variance)
}
