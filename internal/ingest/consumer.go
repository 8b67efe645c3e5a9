package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	kafkautil "github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/kafka"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// Consumer wraps a Kafka reader for the raw sensor topic.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a consumer for raw sensor messages. The raw topic is
// keyed by sensor_id, so one partition carries one ordered device stream.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing raw sensor consumer",
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

// ReadMessage reads the next raw sensor message. Deserialization failures are
// wrapped with events.ErrInvalidFormat so the caller can treat them as
// non-retryable drops rather than stream errors.
func (c *Consumer) ReadMessage(ctx context.Context) (*events.RawSensorMessage, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	var raw events.RawSensorMessage
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal raw sensor message: %v", events.ErrInvalidFormat, err)
	}

	return &raw, nil
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing raw sensor consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing raw sensor consumer", "error", err)
		return err
	}
	return nil
}
