// Package alerts defines the Alert entity, its lifecycle state machine, and
// the durable lifecycle store. An Alert is created by the alert worker,
// persisted, and from then on only mutated through validated transitions.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// AlertType classifies what subsystem an alert concerns.
type AlertType string

const (
	TypeBiomechanical AlertType = "BIOMECHANICAL"
	TypePhysiological AlertType = "PHYSIOLOGICAL"
	TypePerformance   AlertType = "PERFORMANCE"
	TypeSystem        AlertType = "SYSTEM"
)

// KnownType reports whether t is a recognized alert type.
func KnownType(t AlertType) bool {
	switch t {
	case TypeBiomechanical, TypePhysiological, TypePerformance, TypeSystem:
		return true
	}
	return false
}

// Severity is the ordered alert severity: CRITICAL > HIGH > MEDIUM > LOW.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering rank of s, 0 if unknown.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// SeveritiesAtLeast returns all known severities at or above min, for store
// queries filtering on a minimum severity.
func SeveritiesAtLeast(min Severity) []string {
	out := make([]string, 0, len(severityRank))
	for sev, rank := range severityRank {
		if rank >= severityRank[min] {
			out = append(out, string(sev))
		}
	}
	return out
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
	StatusDismissed    Status = "DISMISSED"
)

// Details carries the measurement context that triggered the alert.
type Details struct {
	Metric           string                  `json:"metric"`
	Threshold        float64                 `json:"threshold"`
	CurrentValue     float64                 `json:"current_value"`
	Location         string                  `json:"location,omitempty"`
	ConfidenceScore  float64                 `json:"confidence_score"`
	Recommendations  []string                `json:"recommendations,omitempty"`
	SourceSensorData *events.SensorDataBatch `json:"source_sensor_data,omitempty"`
}

// Alert is the central entity of the pipeline.
type Alert struct {
	ID             string     `json:"id"`
	Type           AlertType  `json:"type"`
	Severity       Severity   `json:"severity"`
	Status         Status     `json:"status"`
	SessionID      string     `json:"session_id"`
	Message        string     `json:"message"`
	Details        Details    `json:"details"`
	Timestamp      time.Time  `json:"timestamp"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// alertNamespace is the UUIDv5 namespace for deterministic alert identifiers.
var alertNamespace = uuid.MustParse("7b7f2f0e-5c1a-4b7d-9d3a-6f8a1e2c4d90")

// DeterministicID derives the alert identifier from the triggering
// (sessionID, metric, timestamp) tuple. Reprocessing the same sub-batch after
// a crash re-derives the same ID, so the store's idempotent insert keeps
// at-least-once redelivery invisible downstream.
func DeterministicID(sessionID, metric string, ts time.Time) string {
	name := fmt.Sprintf("%s|%s|%d", sessionID, metric, ts.UnixMilli())
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

// NewAlertParams are the inputs to New. BatchTimestamp is the timestamp of
// the triggering sensor batch; CriticalThreshold is the configured critical
// threshold for the metric and is required for CRITICAL alerts.
type NewAlertParams struct {
	Type              AlertType
	Severity          Severity
	SessionID         string
	Message           string
	Details           Details
	Timestamp         time.Time
	BatchTimestamp    time.Time
	CriticalThreshold float64
}

// New creates an ACTIVE alert after validating the creation invariants:
// confidence score in [0,1], timestamp neither in the future nor before the
// triggering batch, and CRITICAL severity only when the current value exceeds
// the critical threshold (not merely the warning threshold).
func New(p NewAlertParams) (*Alert, error) {
	if !KnownType(p.Type) {
		return nil, fmt.Errorf("unknown alert type %q", p.Type)
	}
	if p.Severity.Rank() == 0 {
		return nil, fmt.Errorf("unknown severity %q", p.Severity)
	}
	if p.SessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if p.Details.Metric == "" {
		return nil, fmt.Errorf("details metric cannot be empty")
	}
	if p.Details.ConfidenceScore < 0 || p.Details.ConfidenceScore > 1 {
		return nil, fmt.Errorf("confidence score %.3f outside [0,1]", p.Details.ConfidenceScore)
	}
	if p.Timestamp.After(time.Now()) {
		return nil, fmt.Errorf("alert timestamp %s is in the future", p.Timestamp.Format(time.RFC3339))
	}
	if p.Timestamp.Before(p.BatchTimestamp) {
		return nil, fmt.Errorf("alert timestamp %s precedes triggering batch %s",
			p.Timestamp.Format(time.RFC3339), p.BatchTimestamp.Format(time.RFC3339))
	}
	if p.Severity == SeverityCritical && p.Details.CurrentValue <= p.CriticalThreshold {
		return nil, fmt.Errorf("critical alert requires current value %.2f to exceed critical threshold %.2f",
			p.Details.CurrentValue, p.CriticalThreshold)
	}

	return &Alert{
		ID:        DeterministicID(p.SessionID, p.Details.Metric, p.Timestamp),
		Type:      p.Type,
		Severity:  p.Severity,
		Status:    StatusActive,
		SessionID: p.SessionID,
		Message:   p.Message,
		Details:   p.Details,
		Timestamp: p.Timestamp,
	}, nil
}
