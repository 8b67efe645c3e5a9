package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
)

func testAlert() *alerts.Alert {
	return &alerts.Alert{
		ID:        "alert-1",
		Type:      alerts.TypeBiomechanical,
		Severity:  alerts.SeverityCritical,
		Status:    alerts.StatusActive,
		SessionID: "session-abc",
		Message:   "Peak force critical",
		Details: alerts.Details{
			Metric:       "FORCE",
			Threshold:    850,
			CurrentValue: 900,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestWebhookSender_Send(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewWebhookSender()
	if err := s.Send(context.Background(), server.URL, testAlert()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if received.AlertID != "alert-1" {
		t.Errorf("payload alert_id = %s, want alert-1", received.AlertID)
	}
	if received.Severity != "CRITICAL" {
		t.Errorf("payload severity = %s, want CRITICAL", received.Severity)
	}
	if received.Value != 900 {
		t.Errorf("payload value = %.1f, want 900", received.Value)
	}
}

func TestWebhookSender_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewWebhookSender()
	if err := s.Send(context.Background(), server.URL, testAlert()); err == nil {
		t.Error("Send() expected error for 500 response, got nil")
	}
}

func TestWebhookSender_InvalidTarget(t *testing.T) {
	s := NewWebhookSender()

	if err := s.Send(context.Background(), "", testAlert()); err == nil {
		t.Error("Send() expected error for empty target")
	}
	if err := s.Send(context.Background(), "ftp://example.com", testAlert()); err == nil {
		t.Error("Send() expected error for non-HTTP target")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewWebhookSender())

	if _, ok := r.Get("webhook"); !ok {
		t.Error("Get(webhook) not found after Register")
	}
	if _, ok := r.Get("carrier-pigeon"); ok {
		t.Error("Get(carrier-pigeon) found, want missing")
	}
	if got := r.List(); len(got) != 1 || got[0] != "webhook" {
		t.Errorf("List() = %v, want [webhook]", got)
	}
}
