// Package events defines the sensor stream records exchanged between the
// ingestion worker and the alert worker: raw device messages on the input
// topic and normalized sensor data batches on the downstream topic.
package events

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat marks a malformed or incomplete sensor record. These
// failures are non-retryable: the record is dropped and counted.
var ErrInvalidFormat = errors.New("invalid sensor data format")

// Known sensor reading types.
const (
	SensorForce        = "FORCE"
	SensorAcceleration = "ACCELERATION"
	SensorGyroscope    = "GYROSCOPE"
	SensorEMG          = "EMG"
	SensorHeartRate    = "HEART_RATE"
	SensorTemperature  = "TEMPERATURE"
)

var knownSensorTypes = map[string]bool{
	SensorForce:        true,
	SensorAcceleration: true,
	SensorGyroscope:    true,
	SensorEMG:          true,
	SensorHeartRate:    true,
	SensorTemperature:  true,
}

// KnownSensorType reports whether t is a recognized sensor reading type.
func KnownSensorType(t string) bool {
	return knownSensorTypes[t]
}

// SensorReading is one physical measurement sample. Immutable once produced.
type SensorReading struct {
	Type        string    `json:"type"`
	Values      []float64 `json:"values"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// Validate checks that the reading carries a known type and parseable values.
func (r *SensorReading) Validate() error {
	if !KnownSensorType(r.Type) {
		return fmt.Errorf("%w: unknown sensor type %q", ErrInvalidFormat, r.Type)
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("%w: reading of type %s has no values", ErrInvalidFormat, r.Type)
	}
	if r.TimestampMs <= 0 {
		return fmt.Errorf("%w: reading of type %s has non-positive timestamp", ErrInvalidFormat, r.Type)
	}
	return nil
}

// RawSensorMessage is one record on the raw input topic, keyed by sensor_id
// so all readings from one device stay on one partition in arrival order.
type RawSensorMessage struct {
	SensorID    string          `json:"sensor_id"`
	SessionID   string          `json:"session_id"`
	TimestampMs int64           `json:"timestamp_ms"`
	Readings    []SensorReading `json:"readings"`
}

// Validate checks the raw message shape. Violations are non-retryable.
func (m *RawSensorMessage) Validate() error {
	if m.SensorID == "" {
		return fmt.Errorf("%w: sensor_id cannot be empty", ErrInvalidFormat)
	}
	if m.SessionID == "" {
		return fmt.Errorf("%w: session_id cannot be empty", ErrInvalidFormat)
	}
	if len(m.Readings) == 0 {
		return fmt.Errorf("%w: message from sensor %s has no readings", ErrInvalidFormat, m.SensorID)
	}
	for i := range m.Readings {
		if err := m.Readings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SensorDataBatch is one normalized time-window batch on the downstream
// topic, keyed by session_id. QualityScore reflects upstream calibration
// confidence in [0,100].
type SensorDataBatch struct {
	SensorID     string            `json:"sensor_id"`
	SessionID    string            `json:"session_id"`
	SensorType   string            `json:"sensor_type"`
	TimestampMs  int64             `json:"timestamp_ms"`
	Readings     []SensorReading   `json:"readings"`
	QualityScore float64           `json:"quality_score"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate enforces the batch invariants: non-empty readings, quality score
// in range, and every reading consistent with the batch's declared type.
func (b *SensorDataBatch) Validate() error {
	if b.SensorID == "" {
		return fmt.Errorf("%w: batch sensor_id cannot be empty", ErrInvalidFormat)
	}
	if b.SessionID == "" {
		return fmt.Errorf("%w: batch session_id cannot be empty", ErrInvalidFormat)
	}
	if len(b.Readings) == 0 {
		return fmt.Errorf("%w: batch from sensor %s has no readings", ErrInvalidFormat, b.SensorID)
	}
	if !KnownSensorType(b.SensorType) {
		return fmt.Errorf("%w: batch declares unknown sensor type %q", ErrInvalidFormat, b.SensorType)
	}
	if b.QualityScore < 0 || b.QualityScore > 100 {
		return fmt.Errorf("%w: quality score %.1f outside [0,100]", ErrInvalidFormat, b.QualityScore)
	}
	for i := range b.Readings {
		if err := b.Readings[i].Validate(); err != nil {
			return err
		}
		if b.Readings[i].Type != b.SensorType {
			return fmt.Errorf("%w: reading type %s inconsistent with batch type %s",
				ErrInvalidFormat, b.Readings[i].Type, b.SensorType)
		}
	}
	return nil
}
