// Package channel defines the notification channel senders the delivery loop
// routes to, keyed by channel type (strategy pattern).
package channel

import (
	"context"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
)

// Sender is the interface every notification channel implements.
type Sender interface {
	// Send delivers the alert to the target. The target format depends on
	// the channel type:
	//   - webhook: HTTP/HTTPS URL
	//   - email: comma-separated address list
	Send(ctx context.Context, target string, alert *alerts.Alert) error

	// Type returns the channel type this sender handles.
	Type() string
}

// Registry manages channel senders by type.
type Registry struct {
	senders map[string]Sender
}

// NewRegistry creates an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[string]Sender),
	}
}

// Register registers a channel sender.
func (r *Registry) Register(sender Sender) {
	r.senders[sender.Type()] = sender
}

// Get retrieves a sender by channel type.
func (r *Registry) Get(channelType string) (Sender, bool) {
	sender, ok := r.senders[channelType]
	return sender, ok
}

// List returns all registered channel types.
func (r *Registry) List() []string {
	types := make([]string, 0, len(r.senders))
	for t := range r.senders {
		types = append(types, t)
	}
	return types
}
