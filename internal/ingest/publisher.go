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

// Publisher wraps a Kafka writer for the normalized batch topic.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

// NewPublisher creates a publisher for normalized sensor batches. Messages
// are keyed by session_id so one session's batches stay ordered on one
// partition for the alert worker.
func NewPublisher(brokers string, topic string) (*Publisher, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing normalized batch publisher",
		"brokers", brokerList,
		"topic", topic,
	)

	return &Publisher{
		writer: kafkautil.NewWriter(brokerList, topic),
		topic:  topic,
	}, nil
}

// Publish serializes a batch to JSON and writes it to the normalized topic.
func (p *Publisher) Publish(ctx context.Context, batch *events.SensorDataBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal sensor batch: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(batch.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "sensor_id", Value: []byte(batch.SensorID)},
			{Key: "sensor_type", Value: []byte(batch.SensorType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write batch to Kafka: %w", err)
	}

	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Publisher) Close() error {
	slog.Info("Closing normalized batch publisher", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing normalized batch publisher", "error", err)
		return err
	}
	return nil
}
