package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"os"
	"strings"
)

// Initialize the Postgres schema used by the dispatch and tracking stores.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createDriversQuery := `
	CREATE TABLE IF NOT EXISTS drivers (
		driver_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'offline',
		lat DOUBLE PRECISION NOT NULL DEFAULT 0,
		lon DOUBLE PRECISION NOT NULL DEFAULT 0,
		location_updated_at TIMESTAMPTZ,
		vehicle_mode TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		fuel_efficiency DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_delivery_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
		success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		deliveries_today INTEGER NOT NULL DEFAULT 0
	);
	`

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		route_id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL REFERENCES drivers(driver_id),
		status TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		depart_at TIMESTAMPTZ NOT NULL,
		total_distance_meters DOUBLE PRECISION NOT NULL,
		total_duration_minutes INTEGER NOT NULL,
		total_value DOUBLE PRECISION NOT NULL,
		efficiency DOUBLE PRECISION NOT NULL,
		stops JSONB NOT NULL,
		alternatives JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`

	createOrdersQuery := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		total DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createEventsQuery := `
	CREATE TABLE IF NOT EXISTS order_status_events (
		event_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(order_id),
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		driver_id TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		eta TIMESTAMPTZ
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lon DOUBLE PRECISION NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		resolved_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createEventsIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_order_status_events_order_time
	ON order_status_events(order_id, occurred_at);
	`

	createOrdersIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_orders_status_created
	ON orders(status, created_at);
	`

	statements := []string{
		createDriversQuery,
		createRoutesQuery,
		createOrdersQuery,
		createEventsQuery,
		createGeocodeCacheQuery,
		createEventsIndexQuery,
		createOrdersIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Populate the drivers table from a JSON array of drivers.
func SeedDriversFromJSON(db *sql.DB, jsonPath string) error {
	drivers, err := LoadDriverSeed(jsonPath)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed drivers: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertDriverQuery)
	if err != nil {
		return fmt.Errorf("seed drivers: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range drivers {
		if _, err := stmt.Exec(driverArgs(d)...); err != nil {
			return fmt.Errorf("seed drivers: insert driver_id=%s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed drivers: commit tx: %w", err)
	}

	return nil
}

// LoadDriverSeed reads and validates a driver seed file. It also feeds the
// in-memory store when no database is configured.
func LoadDriverSeed(jsonPath string) ([]domain.Driver, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("seed drivers: read %q: %w", jsonPath, err)
	}

	var data []domain.Driver
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("seed drivers: parse json: %w", err)
	}

	seen := make(map[string]struct{}, len(data))
	for i := range data {
		d := &data[i]
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("seed drivers: item at index %d: driver id cannot be empty", i+1)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("seed drivers: duplicate driver id %q", d.ID)
		}
		seen[d.ID] = struct{}{}

		if d.Status == "" {
			d.Status = domain.DriverOffline
		}
		if !d.Status.Valid() {
			return nil, fmt.Errorf("seed drivers: driver %s: status %q: %w", d.ID, d.Status, domain.ErrInvalidStatus)
		}
		if err := d.CheckCapacity(); err != nil {
			return nil, fmt.Errorf("seed drivers: %w", err)
		}
		if err := d.Location.Validate(); err != nil {
			return nil, fmt.Errorf("seed drivers: driver %s location: %w", d.ID, err)
		}
	}

	return data, nil
}
