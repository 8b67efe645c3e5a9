package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
)

// busChannelPrefix namespaces alert traffic on the shared bus.
const busChannelPrefix = "alerts."

// Notification is the envelope delivered on the bus for one matching
// (subscription, channel) pair.
type Notification struct {
	SubscriberID string       `json:"subscriber_id"`
	Channel      string       `json:"channel"`
	Target       string       `json:"target"`
	Alert        alerts.Alert `json:"alert"`
}

// FanOut evaluates every active subscription against each published alert
// and forwards matches onto the bus. It owns no alert state: a bus failure
// delays notification but never touches the alert's persisted record.
type FanOut struct {
	registry *Registry
	bus      Bus
}

// New creates a fan-out over the given bus with an empty registry.
func New(bus Bus) *FanOut {
	return &FanOut{
		registry: NewRegistry(),
		bus:      bus,
	}
}

// Subscribe registers a subscription filter and returns its handle.
func (f *FanOut) Subscribe(sub Subscription) SubscriptionHandle {
	return f.registry.Subscribe(sub)
}

// Unsubscribe removes a subscription by handle.
func (f *FanOut) Unsubscribe(handle SubscriptionHandle) {
	f.registry.Unsubscribe(handle)
}

// Publish routes one alert to every matching subscription's channels.
// Delivery is fire-and-forget from the caller's perspective: per-channel
// failures are logged and the remaining channels still receive theirs; the
// last failure is returned so callers can count it.
func (f *FanOut) Publish(ctx context.Context, alert alerts.Alert) error {
	var lastErr error
	matched := 0

	for _, e := range f.registry.Snapshot() {
		if !e.sub.Matches(&alert) {
			continue
		}
		matched++

		for _, ch := range e.sub.Channels {
			envelope := Notification{
				SubscriberID: e.sub.SubscriberID,
				Channel:      ch.Type,
				Target:       ch.Target,
				Alert:        alert,
			}
			payload, err := json.Marshal(envelope)
			if err != nil {
				lastErr = fmt.Errorf("failed to marshal notification: %w", err)
				slog.Error("Failed to marshal notification",
					"alert_id", alert.ID,
					"subscriber_id", e.sub.SubscriberID,
					"error", err,
				)
				continue
			}

			if err := f.bus.Publish(ctx, busChannelPrefix+ch.Type, payload); err != nil {
				lastErr = err
				slog.Warn("Failed to publish notification to bus",
					"alert_id", alert.ID,
					"subscriber_id", e.sub.SubscriberID,
					"channel", ch.Type,
					"error", err,
				)
			}
		}
	}

	slog.Debug("Alert fanned out",
		"alert_id", alert.ID,
		"severity", alert.Severity,
		"matched_subscriptions", matched,
	)

	return lastErr
}
