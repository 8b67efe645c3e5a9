// Package fanout routes generated alerts to registered subscriptions over a
// clustered pub/sub bus. Subscriptions are registered by the API layer and
// consumed read-only here; the publish path vastly outnumbers subscription
// changes, so the registry hands out immutable snapshots.
package fanout

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
)

// NotificationChannel is one delivery target of a subscription.
type NotificationChannel struct {
	// Type selects the channel sender: "webhook" or "email".
	Type string `json:"type"`
	// Target is the channel-specific destination (URL, address list).
	Target string `json:"target"`
}

// Subscription is a registered alert filter with its delivery channels.
// Categories match against the alert's metric (e.g. FORCE, HEART_RATE); an
// empty filter list matches everything. SessionScope, when set, restricts the
// subscription to one session.
type Subscription struct {
	SubscriberID string                `json:"subscriber_id"`
	AlertTypes   []alerts.AlertType    `json:"alert_types,omitempty"`
	Categories   []string              `json:"categories,omitempty"`
	MinSeverity  alerts.Severity       `json:"min_severity"`
	Channels     []NotificationChannel `json:"channels"`
	SessionScope string                `json:"session_scope,omitempty"`
}

// Matches reports whether the alert passes this subscription's filter.
func (s *Subscription) Matches(a *alerts.Alert) bool {
	if s.SessionScope != "" && s.SessionScope != a.SessionID {
		return false
	}
	if s.MinSeverity != "" && !a.Severity.AtLeast(s.MinSeverity) {
		return false
	}
	if len(s.AlertTypes) > 0 && !containsType(s.AlertTypes, a.Type) {
		return false
	}
	if len(s.Categories) > 0 && !containsString(s.Categories, a.Details.Metric) {
		return false
	}
	return true
}

func containsType(list []alerts.AlertType, t alerts.AlertType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SubscriptionHandle identifies a registered subscription for removal.
type SubscriptionHandle string

// entry pairs a handle with its subscription in the published snapshot.
type entry struct {
	handle SubscriptionHandle
	sub    Subscription
}

// Registry holds the active subscriptions. Mutations rebuild an immutable
// snapshot slice so the publish path iterates without holding any lock
// (copy-on-write; publishes vastly outnumber subscription changes).
type Registry struct {
	mu       sync.RWMutex
	subs     map[SubscriptionHandle]Subscription
	snapshot []entry
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[SubscriptionHandle]Subscription),
	}
}

// Subscribe registers a subscription and returns its handle.
func (r *Registry) Subscribe(sub Subscription) SubscriptionHandle {
	handle := SubscriptionHandle(uuid.NewString())

	r.mu.Lock()
	r.subs[handle] = sub
	r.rebuild()
	r.mu.Unlock()

	slog.Info("Registered alert subscription",
		"handle", handle,
		"subscriber_id", sub.SubscriberID,
		"min_severity", sub.MinSeverity,
		"channels", len(sub.Channels),
	)

	return handle
}

// Unsubscribe removes a subscription. Matching stops immediately for
// subsequent publishes; in-flight deliveries are unaffected.
func (r *Registry) Unsubscribe(handle SubscriptionHandle) {
	r.mu.Lock()
	if _, ok := r.subs[handle]; ok {
		delete(r.subs, handle)
		r.rebuild()
	}
	r.mu.Unlock()

	slog.Info("Removed alert subscription", "handle", handle)
}

// Snapshot returns the current immutable subscription snapshot.
func (r *Registry) Snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// rebuild regenerates the snapshot. Caller holds r.mu.
func (r *Registry) rebuild() {
	snapshot := make([]entry, 0, len(r.subs))
	for h, s := range r.subs {
		snapshot = append(snapshot, entry{handle: h, sub: s})
	}
	r.snapshot = snapshot
}
