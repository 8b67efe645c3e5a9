package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/retry"
)

// Bus is the clustered pub/sub transport the fan-out publishes over.
type Bus interface {
	// Publish delivers one payload to the named bus channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Close releases the transport's resources.
	Close() error
}

// RedisBus is the Redis-backed pub/sub transport. go-redis re-establishes
// dropped connections on its own; publishes additionally run under bounded
// retry with backoff so a broker-node failover only delays delivery.
type RedisBus struct {
	client   *redis.Client
	retryCfg retry.Config
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, addr string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	slog.Info("Connected to distribution bus", "addr", addr)

	return &RedisBus{
		client:   client,
		retryCfg: retry.DefaultConfig(),
	}, nil
}

// NewRedisBusWithClient wraps an existing client, primarily for tests.
func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{
		client:   client,
		retryCfg: retry.DefaultConfig(),
	}
}

// Publish delivers the payload to the named channel, retrying transient
// failures with bounded backoff.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	err := retry.WithRetryAll(ctx, b.retryCfg, "bus_publish_"+channel, func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish to bus channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a bus subscription on the given channels. The returned
// PubSub reconnects automatically after broker-node failure.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return b.client.Subscribe(ctx, channels...)
}

// Close releases the underlying Redis client.
func (b *RedisBus) Close() error {
	slog.Info("Closing distribution bus connection")
	return b.client.Close()
}
