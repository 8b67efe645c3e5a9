package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/fanout/channel/provider"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/shared"
)

// EmailSender delivers alerts by email through the provider registry.
type EmailSender struct {
	providers *provider.Registry
	from      string
}

// NewEmailSender creates an email sender. The sender address is read from
// ALERT_EMAIL_FROM.
func NewEmailSender(providers *provider.Registry) *EmailSender {
	return &EmailSender{
		providers: providers,
		from:      shared.GetEnvOrDefault("ALERT_EMAIL_FROM", "alerts@mybodyradar.io"),
	}
}

// Type returns the channel type this sender handles.
func (s *EmailSender) Type() string {
	return "email"
}

// Send emails the alert to the target addresses. The target is a
// comma-separated address list.
func (s *EmailSender) Send(ctx context.Context, target string, alert *alerts.Alert) error {
	if target == "" {
		return fmt.Errorf("email recipient is required")
	}

	recipients := splitRecipients(target)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid email recipients in %q", target)
	}

	req := &provider.EmailRequest{
		From:    s.from,
		To:      recipients,
		Subject: emailSubject(alert),
		Body:    emailBody(alert),
	}

	if err := s.providers.Send(ctx, req); err != nil {
		return fmt.Errorf("failed to send email notification: %w", err)
	}

	slog.Info("Sent email notification",
		"recipients", len(recipients),
		"alert_id", alert.ID,
		"severity", alert.Severity,
	)

	return nil
}

func splitRecipients(target string) []string {
	parts := strings.Split(target, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		addr := strings.TrimSpace(p)
		if addr != "" && strings.Contains(addr, "@") {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

func emailSubject(alert *alerts.Alert) string {
	return fmt.Sprintf("[%s] %s alert for session %s", alert.Severity, alert.Type, alert.SessionID)
}

func emailBody(alert *alerts.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Message)
	fmt.Fprintf(&b, "Alert ID:   %s\n", alert.ID)
	fmt.Fprintf(&b, "Session:    %s\n", alert.SessionID)
	fmt.Fprintf(&b, "Metric:     %s\n", alert.Details.Metric)
	fmt.Fprintf(&b, "Value:      %.2f (threshold %.2f)\n", alert.Details.CurrentValue, alert.Details.Threshold)
	if alert.Details.Location != "" {
		fmt.Fprintf(&b, "Location:   %s\n", alert.Details.Location)
	}
	fmt.Fprintf(&b, "Time:       %s\n", alert.Timestamp.Format(time.RFC3339))
	if len(alert.Details.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range alert.Details.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	return b.String()
}
