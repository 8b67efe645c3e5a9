package alertworker

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// BatchFetcher reads normalized sensor batches from one consumer-group
// member. Offsets are committed explicitly, after persistence, to give
// at-least-once semantics.
type BatchFetcher interface {
	// Fetch reads the next batch without committing its offset. Returns the
	// raw message for offset tracking. Malformed payloads return an error
	// wrapping events.ErrInvalidFormat together with the raw message so the
	// caller can commit past them.
	Fetch(ctx context.Context) (*events.SensorDataBatch, *kafka.Message, error)

	// Commit commits the offsets of the given messages.
	Commit(ctx context.Context, msgs ...kafka.Message) error

	// Close closes the fetcher and releases resources.
	Close() error
}

// AlertSink receives persisted alerts for distribution. Delivery is
// best-effort from the worker's perspective: a sink failure delays
// notification but never un-persists the alert or blocks the offset commit.
type AlertSink interface {
	// Publish routes one alert to matching subscriptions.
	Publish(ctx context.Context, alert alerts.Alert) error
}
