package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// HistoryStore persists normalized batches to the sensor history table.
// Writes happen on the async persistence queue so store slowness never stalls
// the stream.
type HistoryStore struct {
	conn *sql.DB
}

// NewHistoryStore opens a connection using the provided DSN and verifies it.
func NewHistoryStore(dsn string) (*HistoryStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL sensor history store")

	return &HistoryStore{conn: conn}, nil
}

// NewHistoryStoreWithConn wraps an existing connection, primarily for tests.
func NewHistoryStoreWithConn(conn *sql.DB) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.conn != nil {
		slog.Info("Closing sensor history store connection")
		return s.conn.Close()
	}
	return nil
}

// SaveBatch inserts one normalized batch idempotently. A batch is identified
// by (sensor_id, sensor_type, timestamp_ms); redelivered batches are no-ops.
func (s *HistoryStore) SaveBatch(ctx context.Context, batch *events.SensorDataBatch) error {
	readingsJSON, err := json.Marshal(batch.Readings)
	if err != nil {
		return fmt.Errorf("failed to marshal batch readings: %w", err)
	}

	query := `
		INSERT INTO sensor_batches (sensor_id, sensor_type, session_id, timestamp_ms, quality_score, readings)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sensor_id, sensor_type, timestamp_ms) DO NOTHING
	`

	if _, err := s.conn.ExecContext(ctx, query,
		batch.SensorID,
		batch.SensorType,
		batch.SessionID,
		batch.TimestampMs,
		batch.QualityScore,
		string(readingsJSON),
	); err != nil {
		return fmt.Errorf("failed to insert sensor batch: %w", err)
	}

	return nil
}
