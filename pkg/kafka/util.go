// Package kafka provides shared Kafka configuration for the pipeline workers.
package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// MaxPollWait is the maximum time a reader waits for new data before returning.
	MaxPollWait = 500 * time.Millisecond
	// WriteTimeout is the maximum time to wait for a Kafka write operation.
	WriteTimeout = 10 * time.Second
	// HeartbeatInterval is how often consumer-group liveness is signalled to the
	// coordinator. Kept well below the session timeout so a worker mid-batch is
	// not evicted from its partition assignment.
	HeartbeatInterval = 3 * time.Second
	// SessionTimeout is how long the coordinator waits for heartbeats before
	// rebalancing the member's partitions away.
	SessionTimeout = 30 * time.Second
)

// ParseBrokers parses a comma-separated broker list and trims whitespace.
// Returns a slice of broker addresses.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}
	return brokerList
}

// ValidateConsumerParams validates common consumer parameters.
// Returns an error if any parameter is invalid.
func ValidateConsumerParams(brokers, topic, groupID string) error {
	if brokers == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return fmt.Errorf("groupID cannot be empty")
	}
	return nil
}

// ValidateProducerParams validates common producer parameters.
// Returns an error if any parameter is invalid.
func ValidateProducerParams(brokers, topic string) error {
	if brokers == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	return nil
}

// NewReaderConfig creates a standard Kafka reader configuration for
// at-least-once delivery. Offsets are committed explicitly by the caller
// (CommitMessages after processing); there is no interval-based auto-commit.
func NewReaderConfig(brokers []string, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:           brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          1,    // Return immediately when any data is available
		MaxBytes:          10e6, // 10MB
		MaxWait:           MaxPollWait,
		HeartbeatInterval: HeartbeatInterval,
		SessionTimeout:    SessionTimeout,
		StartOffset:       kafka.FirstOffset, // Start from beginning if no committed offset
	}
}

// NewWriter creates a standard Kafka writer for at-least-once delivery.
// Messages are partitioned by key (Hash balancer) so records for the same
// key land on one partition and keep their ordering.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Key-based partitioning (hashes the message key)
		WriteTimeout: WriteTimeout,
		RequiredAcks: kafka.RequireOne, // At-least-once semantics (waits for leader ack)
		Async:        false,            // Synchronous writes for reliability and error handling
	}
}
