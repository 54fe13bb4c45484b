// Package archive persists the alert audit trail to PostgreSQL.
// Writes are best-effort: a failed archive write is logged and
// counted, never propagated, since durability beyond the in-memory
// rolling window is explicitly not a guarantee the core makes.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/util/logger"
	"github.com/skymesh/fleetcore/util/metrics"
)

// Retention bounds the archived history, matching the in-memory
// history retention
const Retention = 30 * 24 * time.Hour

// Archive is the PostgreSQL-backed alert audit trail
type Archive struct {
	conn   *sql.DB
	config *Config
	logger *logger.Logger
}

// Open connects to the database and initializes the schema
func Open(ctx context.Context, config *Config) (*Archive, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	conn, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	a := &Archive{
		conn:   conn,
		config: config,
		logger: logger.NewLogger("AlertArchive"),
	}
	if err := a.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Ping checks the database connection
func (a *Archive) Ping(ctx context.Context) error {
	return a.conn.PingContext(ctx)
}

func (a *Archive) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fleetcore_alerts (
		id BIGSERIAL PRIMARY KEY,
		alert_id VARCHAR(255) NOT NULL,
		drone_id VARCHAR(255) NOT NULL,
		alert_type VARCHAR(255) NOT NULL,
		severity VARCHAR(50) NOT NULL,
		message TEXT NOT NULL,
		raised_at TIMESTAMP NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_by VARCHAR(255),
		resolved_at TIMESTAMP,
		recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_fleetcore_alerts_alert_id ON fleetcore_alerts(alert_id);
	CREATE INDEX IF NOT EXISTS idx_fleetcore_alerts_drone_id ON fleetcore_alerts(drone_id);
	CREATE INDEX IF NOT EXISTS idx_fleetcore_alerts_raised_at ON fleetcore_alerts(raised_at);
	`
	_, err := a.conn.ExecContext(ctx, schema)
	return err
}

// RecordRaised appends a raised alert to the archive
func (a *Archive) RecordRaised(ctx context.Context, alert fleet.Alert) {
	query := `
		INSERT INTO fleetcore_alerts (alert_id, drone_id, alert_type, severity, message, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := a.conn.ExecContext(ctx, query,
		alert.ID, alert.DroneID, alert.Type, string(alert.Severity), alert.Message, alert.Timestamp)
	if err != nil {
		a.logger.Errorf("Failed to archive raised alert %s: %v", alert.ID, err)
		metrics.RecordArchive("raise", "error")
		return
	}
	metrics.RecordArchive("raise", "ok")
}

// RecordResolved marks the most recent archived entry for the alert
// id as resolved
func (a *Archive) RecordResolved(ctx context.Context, alert fleet.Alert) {
	resolvedAt := time.Now()
	if alert.ResolvedAt != nil {
		resolvedAt = *alert.ResolvedAt
	}
	query := `
		UPDATE fleetcore_alerts
		SET resolved = TRUE, resolved_by = $2, resolved_at = $3
		WHERE id = (
			SELECT id FROM fleetcore_alerts
			WHERE alert_id = $1 AND NOT resolved
			ORDER BY raised_at DESC
			LIMIT 1
		)
	`
	_, err := a.conn.ExecContext(ctx, query, alert.ID, alert.ResolvedBy, resolvedAt)
	if err != nil {
		a.logger.Errorf("Failed to archive resolution of alert %s: %v", alert.ID, err)
		metrics.RecordArchive("resolve", "error")
		return
	}
	metrics.RecordArchive("resolve", "ok")
}

// RecentAlerts returns archived alerts for a drone raised within the
// given window, newest first. An empty drone id matches all drones.
func (a *Archive) RecentAlerts(ctx context.Context, droneID string, window time.Duration) ([]fleet.Alert, error) {
	query := `
		SELECT alert_id, drone_id, alert_type, severity, message, raised_at, resolved, resolved_by, resolved_at
		FROM fleetcore_alerts
		WHERE raised_at >= $1 AND ($2 = '' OR drone_id = $2)
		ORDER BY raised_at DESC
	`
	rows, err := a.conn.QueryContext(ctx, query, time.Now().Add(-window), droneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived alerts: %w", err)
	}
	defer rows.Close()

	var alerts []fleet.Alert
	for rows.Next() {
		var alert fleet.Alert
		var severity string
		var resolvedBy sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&alert.ID, &alert.DroneID, &alert.Type, &severity, &alert.Message,
			&alert.Timestamp, &alert.Resolved, &resolvedBy, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived alert: %w", err)
		}
		alert.Severity = fleet.AlertSeverity(severity)
		if resolvedBy.Valid {
			alert.ResolvedBy = resolvedBy.String
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			alert.ResolvedAt = &t
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// Prune deletes archived entries older than the retention bound and
// returns the number removed
func (a *Archive) Prune(ctx context.Context) (int64, error) {
	result, err := a.conn.ExecContext(ctx,
		`DELETE FROM fleetcore_alerts WHERE raised_at < $1`, time.Now().Add(-Retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	return result.RowsAffected()
}
