// Package provider defines the email backend interface and a small registry
// with fallback support, so alert email keeps flowing when the primary
// backend is down or unconfigured.
package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// EmailRequest represents an email to be sent.
type EmailRequest struct {
	From    string
	To      []string
	Subject string
	Body    string // Plain text body
	HTML    string // HTML body (optional)
}

// Provider is the interface that all email backends must implement.
type Provider interface {
	// Name returns the provider name (e.g. "resend", "ses").
	Name() string

	// Send sends an email using this provider.
	Send(ctx context.Context, req *EmailRequest) error

	// IsConfigured returns true if the provider is properly configured.
	IsConfigured() bool
}

// Registry holds email providers in fallback order.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry trying providers in the given order.
func NewRegistry(providers ...Provider) *Registry {
	for _, p := range providers {
		slog.Info("Registered email provider", "name", p.Name(), "configured", p.IsConfigured())
	}
	return &Registry{providers: providers}
}

// Send sends the email with the first configured provider, falling back to
// later ones on failure. The first error is returned when all fail.
func (r *Registry) Send(ctx context.Context, req *EmailRequest) error {
	var firstErr error

	for _, p := range r.providers {
		if !p.IsConfigured() {
			continue
		}
		err := p.Send(ctx, req)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
		slog.Warn("Email provider failed, trying fallback",
			"provider", p.Name(),
			"error", err,
		)
	}

	if firstErr != nil {
		return firstErr
	}
	return fmt.Errorf("no configured email provider available")
}
