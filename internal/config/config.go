// Package config provides configuration parsing and validation for the
// pipeline workers.
package config

import (
	"fmt"
	"time"
)

// IngestionConfig holds all configuration parameters for the ingestion worker.
type IngestionConfig struct {
	KafkaBrokers    string
	RawTopic        string
	BatchedTopic    string
	ConsumerGroupID string
	PostgresDSN     string
	WindowDuration  time.Duration
	MetricsAddr     string
}

// Validate checks that all required configuration fields are set and have valid values.
// Returns an error if validation fails, nil otherwise.
func (c *IngestionConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.RawTopic == "" {
		return fmt.Errorf("raw-topic cannot be empty")
	}
	if c.BatchedTopic == "" {
		return fmt.Errorf("batched-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window-duration must be > 0")
	}
	return nil
}

// AlertWorkerConfig holds all configuration parameters for the alert worker.
type AlertWorkerConfig struct {
	KafkaBrokers    string
	BatchedTopic    string
	ConsumerGroupID string
	PostgresDSN     string
	RedisAddr       string
	Concurrency     int
	SubBatchSize    int
	MetricsAddr     string
}

// Validate checks that all required configuration fields are set and have valid values.
// Returns an error if validation fails, nil otherwise.
func (c *AlertWorkerConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.BatchedTopic == "" {
		return fmt.Errorf("batched-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.SubBatchSize <= 0 {
		return fmt.Errorf("sub-batch-size must be > 0")
	}
	return nil
}

// DistributorConfig holds all configuration parameters for the notification
// distributor.
type DistributorConfig struct {
	RedisAddr string
}

// Validate checks that all required configuration fields are set and have valid values.
// Returns an error if validation fails, nil otherwise.
func (c *DistributorConfig) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	return nil
}
