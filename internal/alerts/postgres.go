package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is the Postgres-backed alert lifecycle store.
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgresStore opens a connection using the provided DSN and verifies it.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL alert store")

	return &PostgresStore{conn: conn}, nil
}

// NewPostgresStoreWithConn wraps an existing connection, primarily for tests.
func NewPostgresStoreWithConn(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.conn != nil {
		slog.Info("Closing alert store connection")
		return s.conn.Close()
	}
	return nil
}

// marshalSourceData serializes the triggering batch to a sql.NullString for
// JSONB storage. Returns Valid=false (NULL) when there is no source data.
func marshalSourceData(d *Details) (sql.NullString, error) {
	if d.SourceSensorData == nil {
		return sql.NullString{}, nil
	}
	jsonBytes, err := json.Marshal(d.SourceSensorData)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal source sensor data: %w", err)
	}
	return sql.NullString{String: string(jsonBytes), Valid: true}, nil
}

// Create inserts the alert idempotently.
// Uses INSERT ... ON CONFLICT DO NOTHING RETURNING so redelivered sub-batches
// re-deriving the same deterministic ID never produce duplicate rows.
func (s *PostgresStore) Create(ctx context.Context, alert *Alert) (string, error) {
	sourceJSON, err := marshalSourceData(&alert.Details)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO alerts (alert_id, type, severity, status, session_id, message,
			metric, threshold, current_value, location, confidence_score,
			recommendations, source_sensor_data, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (alert_id) DO NOTHING
		RETURNING alert_id
	`

	var alertID string
	err = s.conn.QueryRowContext(ctx, query,
		alert.ID,
		string(alert.Type),
		string(alert.Severity),
		string(alert.Status),
		alert.SessionID,
		alert.Message,
		alert.Details.Metric,
		alert.Details.Threshold,
		alert.Details.CurrentValue,
		alert.Details.Location,
		alert.Details.ConfidenceScore,
		pq.Array(alert.Details.Recommendations),
		sourceJSON,
		alert.Timestamp,
	).Scan(&alertID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No row was inserted: the alert already exists from an earlier
			// delivery of the same sub-batch.
			slog.Debug("Alert already exists, skipping insert",
				"alert_id", alert.ID,
				"session_id", alert.SessionID,
			)
			return alert.ID, nil
		}
		return "", fmt.Errorf("failed to insert alert: %w", err)
	}

	slog.Info("Inserted new alert",
		"alert_id", alertID,
		"session_id", alert.SessionID,
		"type", alert.Type,
		"severity", alert.Severity,
	)

	return alertID, nil
}

// GetActiveByType returns ACTIVE alerts of the given type at or above the
// minimum severity, newest first.
func (s *PostgresStore) GetActiveByType(ctx context.Context, alertType AlertType, minSeverity Severity) ([]Alert, error) {
	query := `
		SELECT alert_id, type, severity, status, session_id, message,
			metric, threshold, current_value, location, confidence_score,
			recommendations, ts, acknowledged_by, acknowledged_at
		FROM alerts
		WHERE type = $1 AND status = 'ACTIVE' AND severity = ANY($2)
		ORDER BY ts DESC
	`

	rows, err := s.conn.QueryContext(ctx, query, string(alertType), pq.Array(SeveritiesAtLeast(minSeverity)))
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// Transition moves a stored alert to a new lifecycle status inside a
// transaction. The current row is locked, the transition validated against
// the lifecycle rules, and the row updated only when valid; violations roll
// back and return ErrInvalidTransition.
func (s *PostgresStore) Transition(ctx context.Context, id string, to Status, actor string) (*Alert, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT alert_id, type, severity, status, session_id, message,
			metric, threshold, current_value, location, confidence_score,
			recommendations, ts, acknowledged_by, acknowledged_at
		FROM alerts
		WHERE alert_id = $1
		FOR UPDATE
	`, id)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alert %s not found: %w", id, err)
		}
		return nil, err
	}

	if err := alert.Transition(to, actor, time.Now().UTC()); err != nil {
		return nil, err
	}

	var ackAt sql.NullTime
	if alert.AcknowledgedAt != nil {
		ackAt = sql.NullTime{Time: *alert.AcknowledgedAt, Valid: true}
	}
	var ackBy sql.NullString
	if alert.AcknowledgedBy != "" {
		ackBy = sql.NullString{String: alert.AcknowledgedBy, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE alerts
		SET status = $2, acknowledged_by = $3, acknowledged_at = $4, updated_at = now()
		WHERE alert_id = $1
	`, id, string(alert.Status), ackBy, ackAt); err != nil {
		return nil, fmt.Errorf("failed to update alert %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	slog.Info("Alert transitioned",
		"alert_id", id,
		"status", alert.Status,
		"actor", actor,
	)

	return alert, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		a        Alert
		typ      string
		severity string
		status   string
		location sql.NullString
		recs     pq.StringArray
		ackBy    sql.NullString
		ackAt    sql.NullTime
	)

	err := row.Scan(
		&a.ID, &typ, &severity, &status, &a.SessionID, &a.Message,
		&a.Details.Metric, &a.Details.Threshold, &a.Details.CurrentValue,
		&location, &a.Details.ConfidenceScore, &recs, &a.Timestamp,
		&ackBy, &ackAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert row: %w", err)
	}

	a.Type = AlertType(typ)
	a.Severity = Severity(severity)
	a.Status = Status(status)
	a.Details.Location = location.String
	a.Details.Recommendations = recs
	if ackBy.Valid {
		a.AcknowledgedBy = ackBy.String
	}
	if ackAt.Valid {
		t := ackAt.Time
		a.AcknowledgedAt = &t
	}

	return &a, nil
}
