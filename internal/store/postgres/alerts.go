package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
	"github.com/movilityai/tripplanner/internal/lib/geo"
)

// DB is the subset of *pgxpool.Pool the store uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Schema creates the alerts table
const Schema = `
CREATE TABLE IF NOT EXISTS traffic_alerts (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'other',
	severity    TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	zone_tag    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS traffic_alerts_active_idx ON traffic_alerts (is_active, created_at DESC);
`

// AlertStore persists operator-reported alerts
type AlertStore struct {
	db    DB
	limit int
	now   func() time.Time
}

// NewAlertStore creates a store returning at most limit active alerts
func NewAlertStore(db DB, limit int) *AlertStore {
	if limit <= 0 {
		limit = 200
	}
	return &AlertStore{db: db, limit: limit, now: time.Now}
}

// Migrate creates the schema if missing
func (s *AlertStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: failed to migrate alerts schema: %w", err)
	}
	return nil
}

// Save upserts an alert. A zero expiresAt keeps it until deactivated.
func (s *AlertStore) Save(ctx context.Context, a alerts.Alert, expiresAt time.Time) error {
	query := `
		INSERT INTO traffic_alerts (
			id, title, description, type, severity, latitude, longitude,
			zone_tag, source, created_at, expires_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			type = EXCLUDED.type, severity = EXCLUDED.severity,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			zone_tag = EXCLUDED.zone_tag, expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active
	`

	var lat, lng *float64
	if a.Location != nil {
		lat, lng = &a.Location.Latitude, &a.Location.Longitude
	}
	var expires *time.Time
	if !expiresAt.IsZero() {
		expires = &expiresAt
	}

	_, err := s.db.Exec(ctx, query,
		a.ID, a.Title, a.Description, string(a.Type), string(a.Severity), lat, lng,
		a.ZoneTag, a.Source, a.Timestamp, expires, a.IsActive,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save alert %s: %w", a.ID, err)
	}
	return nil
}

// Deactivate marks an alert as no longer active
func (s *AlertStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE traffic_alerts SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to deactivate alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: alert %s not found", id)
	}
	return nil
}

// ActiveAlerts returns unexpired active alerts, newest first
func (s *AlertStore) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	query := `
		SELECT id, title, description, type, severity, latitude, longitude,
			   zone_tag, source, created_at, is_active
		FROM traffic_alerts
		WHERE is_active AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, s.now(), s.limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query alerts: %w", err)
	}
	defer rows.Close()

	var results []alerts.Alert
	for rows.Next() {
		var (
			a                   alerts.Alert
			alertType, sev      string
			latitude, longitude *float64
		)
		err := rows.Scan(
			&a.ID, &a.Title, &a.Description, &alertType, &sev, &latitude, &longitude,
			&a.ZoneTag, &a.Source, &a.Timestamp, &a.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan alert row: %w", err)
		}
		a.Type = alerts.AlertType(alertType)
		a.Severity = alerts.Severity(sev)
		if latitude != nil && longitude != nil {
			a.Location = &geo.Point{Latitude: *latitude, Longitude: *longitude}
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read alert rows: %w", err)
	}

	return results, nil
}
