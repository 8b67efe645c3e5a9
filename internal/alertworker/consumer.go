package alertworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	kafkautil "github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/kafka"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// Consumer wraps a Kafka reader for the normalized batch topic. Each
// partition loop owns one Consumer; the shared group ID lets the coordinator
// spread partitions across them, and the reader's background heartbeat keeps
// the member alive while a long sub-batch is being processed.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a consumer-group member for normalized batches.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing normalized batch consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// Fetch reads the next normalized batch without committing its offset.
// Malformed payloads return the raw message alongside an error wrapping
// events.ErrInvalidFormat, so the caller can count the drop and still commit
// past it.
func (c *Consumer) Fetch(ctx context.Context) (*events.SensorDataBatch, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message from Kafka: %w", err)
	}

	var batch events.SensorDataBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return nil, &msg, fmt.Errorf("%w: failed to unmarshal sensor batch: %v", events.ErrInvalidFormat, err)
	}

	return &batch, &msg, nil
}

// Commit commits the offsets of the given messages. Called only after the
// sub-batch's alerts are persisted, which is what makes delivery
// at-least-once.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}
	return nil
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing normalized batch consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing normalized batch consumer", "error", err)
		return err
	}
	return nil
}
