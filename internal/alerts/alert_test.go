package alerts

import (
	"testing"
	"time"
)

func baseParams() NewAlertParams {
	ts := time.Now().Add(-time.Second)
	return NewAlertParams{
		Type:      TypeBiomechanical,
		Severity:  SeverityHigh,
		SessionID: "session-abc",
		Message:   "Peak force above warning threshold",
		Details: Details{
			Metric:          "FORCE",
			Threshold:       700,
			CurrentValue:    750,
			ConfidenceScore: 1.0,
		},
		Timestamp:         ts,
		BatchTimestamp:    ts.Add(-50 * time.Millisecond),
		CriticalThreshold: 850,
	}
}

func TestNew_ValidAlert(t *testing.T) {
	alert, err := New(baseParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if alert.Status != StatusActive {
		t.Errorf("new alert status = %s, want %s", alert.Status, StatusActive)
	}
	if alert.ID == "" {
		t.Error("new alert has empty ID")
	}
	if alert.AcknowledgedBy != "" || alert.AcknowledgedAt != nil {
		t.Error("new alert must not carry acknowledgment data")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *NewAlertParams)
	}{
		{
			name:   "unknown type",
			mutate: func(p *NewAlertParams) { p.Type = "WEATHER" },
		},
		{
			name:   "unknown severity",
			mutate: func(p *NewAlertParams) { p.Severity = "EXTREME" },
		},
		{
			name:   "empty session id",
			mutate: func(p *NewAlertParams) { p.SessionID = "" },
		},
		{
			name:   "empty metric",
			mutate: func(p *NewAlertParams) { p.Details.Metric = "" },
		},
		{
			name:   "confidence score above one",
			mutate: func(p *NewAlertParams) { p.Details.ConfidenceScore = 1.01 },
		},
		{
			name:   "negative confidence score",
			mutate: func(p *NewAlertParams) { p.Details.ConfidenceScore = -0.1 },
		},
		{
			name:   "timestamp in the future",
			mutate: func(p *NewAlertParams) { p.Timestamp = time.Now().Add(time.Hour) },
		},
		{
			name: "timestamp before triggering batch",
			mutate: func(p *NewAlertParams) {
				p.BatchTimestamp = p.Timestamp.Add(time.Second)
			},
		},
		{
			name: "critical severity without critical breach",
			mutate: func(p *NewAlertParams) {
				p.Severity = SeverityCritical
				p.Details.CurrentValue = 800 // above warning 700, below critical 850
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseParams()
			tt.mutate(&p)
			if _, err := New(p); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestNew_CriticalRequiresBreachOfCriticalThreshold(t *testing.T) {
	p := baseParams()
	p.Severity = SeverityCritical
	p.Details.CurrentValue = 900

	alert, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if alert.Severity != SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", alert.Severity)
	}
}

func TestDeterministicID_Stable(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	a := DeterministicID("session-abc", "FORCE", ts)
	b := DeterministicID("session-abc", "FORCE", ts)
	if a != b {
		t.Errorf("same tuple produced different IDs: %s vs %s", a, b)
	}

	if DeterministicID("session-abc", "FORCE", ts.Add(time.Millisecond)) == a {
		t.Error("different timestamp must produce a different ID")
	}
	if DeterministicID("session-abc", "EMG", ts) == a {
		t.Error("different metric must produce a different ID")
	}
	if DeterministicID("session-xyz", "FORCE", ts) == a {
		t.Error("different session must produce a different ID")
	}
}

func TestSeverity_Ordering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityLow) {
		t.Error("CRITICAL should be at least LOW")
	}
	if SeverityMedium.AtLeast(SeverityHigh) {
		t.Error("MEDIUM should not be at least HIGH")
	}

	got := SeveritiesAtLeast(SeverityHigh)
	if len(got) != 2 {
		t.Fatalf("SeveritiesAtLeast(HIGH) = %v, want exactly HIGH and CRITICAL", got)
	}
	found := map[string]bool{}
	for _, s := range got {
		found[s] = true
	}
	if !found[string(SeverityHigh)] || !found[string(SeverityCritical)] {
		t.Errorf("SeveritiesAtLeast(HIGH) = %v, want HIGH and CRITICAL", got)
	}
}
