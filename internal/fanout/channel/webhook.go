package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
)

// WebhookSender delivers alerts via HTTP POST.
type WebhookSender struct {
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Type returns the channel type this sender handles.
func (s *WebhookSender) Type() string {
	return "webhook"
}

// webhookPayload is the JSON body posted to webhook targets.
type webhookPayload struct {
	AlertID   string  `json:"alert_id"`
	Type      string  `json:"type"`
	Severity  string  `json:"severity"`
	SessionID string  `json:"session_id"`
	Message   string  `json:"message"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Timestamp string  `json:"timestamp"`
}

// Send posts the alert to the target webhook URL.
func (s *WebhookSender) Send(ctx context.Context, target string, alert *alerts.Alert) error {
	if target == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("invalid webhook URL: %q (must be a valid HTTP/HTTPS URL)", target)
	}

	body := webhookPayload{
		AlertID:   alert.ID,
		Type:      string(alert.Type),
		Severity:  string(alert.Severity),
		SessionID: alert.SessionID,
		Message:   alert.Message,
		Metric:    alert.Details.Metric,
		Value:     alert.Details.CurrentValue,
		Threshold: alert.Details.Threshold,
		Timestamp: alert.Timestamp.Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Sent webhook notification",
		"webhook_url", target,
		"alert_id", alert.ID,
		"severity", alert.Severity,
	)

	return nil
}
