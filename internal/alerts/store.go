package alerts

import "context"

// Store is the narrow lifecycle-store contract the pipeline depends on.
// Dashboard-style read paths live in the API layer, not here.
type Store interface {
	// Create persists a new alert idempotently and returns its ID. Creating
	// an alert whose deterministic ID already exists is a no-op that returns
	// the existing ID, which is what makes at-least-once reprocessing safe.
	Create(ctx context.Context, alert *Alert) (string, error)

	// GetActiveByType returns ACTIVE alerts of the given type at or above the
	// minimum severity.
	GetActiveByType(ctx context.Context, alertType AlertType, minSeverity Severity) ([]Alert, error)

	// Transition applies a validated lifecycle transition to a stored alert
	// and returns the updated entity. Rule violations return
	// ErrInvalidTransition and leave the stored alert unchanged.
	Transition(ctx context.Context, id string, to Status, actor string) (*Alert, error)

	// Close releases the store's resources.
	Close() error
}
