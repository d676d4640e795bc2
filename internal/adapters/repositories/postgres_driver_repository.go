package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
)

// Postgres-backed implementation of the DriverRepository port.
type PostgresDriverRepository struct{ DB *sql.DB }

func NewPostgresDriverRepository(db *sql.DB) *PostgresDriverRepository {
	return &PostgresDriverRepository{DB: db}
}

const selectDriverColumns = `
	SELECT
		driver_id,
		name,
		phone,
		status,
		lat,
		lon,
		location_updated_at,
		vehicle_mode,
		capacity,
		fuel_efficiency,
		avg_delivery_minutes,
		success_rate,
		rating,
		deliveries_today
	FROM drivers
`

const upsertDriverQuery = `
	INSERT INTO drivers (
		driver_id, name, phone, status, lat, lon, location_updated_at,
		vehicle_mode, capacity, fuel_efficiency,
		avg_delivery_minutes, success_rate, rating, deliveries_today
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (driver_id) DO UPDATE
	SET name = EXCLUDED.name,
		phone = EXCLUDED.phone,
		status = EXCLUDED.status,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		location_updated_at = EXCLUDED.location_updated_at,
		vehicle_mode = EXCLUDED.vehicle_mode,
		capacity = EXCLUDED.capacity,
		fuel_efficiency = EXCLUDED.fuel_efficiency,
		avg_delivery_minutes = EXCLUDED.avg_delivery_minutes,
		success_rate = EXCLUDED.success_rate,
		rating = EXCLUDED.rating,
		deliveries_today = EXCLUDED.deliveries_today;
`

func driverArgs(d domain.Driver) []any {
	var updated sql.NullTime
	if !d.LocationUpdatedAt.IsZero() {
		updated = sql.NullTime{Time: d.LocationUpdatedAt, Valid: true}
	}
	return []any{
		d.ID, d.Name, d.Phone, string(d.Status), d.Location.Lat, d.Location.Lon, updated,
		string(d.Vehicle.Mode), d.Vehicle.Capacity, d.Vehicle.FuelEfficiency,
		d.Performance.AvgDeliveryMinutes, d.Performance.SuccessRate, d.Performance.Rating, d.Performance.DeliveriesToday,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var d domain.Driver
	var status, mode string
	var updated sql.NullTime

	err := row.Scan(
		&d.ID, &d.Name, &d.Phone, &status,
		&d.Location.Lat, &d.Location.Lon, &updated,
		&mode, &d.Vehicle.Capacity, &d.Vehicle.FuelEfficiency,
		&d.Performance.AvgDeliveryMinutes, &d.Performance.SuccessRate,
		&d.Performance.Rating, &d.Performance.DeliveriesToday,
	)
	if err != nil {
		return nil, err
	}

	d.Status = domain.DriverStatus(status)
	d.Vehicle.Mode = domain.VehicleMode(mode)
	if updated.Valid {
		d.LocationUpdatedAt = updated.Time.UTC()
	}
	return &d, nil
}

// Return all drivers ordered by id.
func (p *PostgresDriverRepository) ListDrivers(ctx context.Context) (_ []*domain.Driver, err error) {
	defer obs.Time(ctx, "drivers.List")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres driver repository: DB is nil")
	}

	rows, err := p.DB.QueryContext(ctx, selectDriverColumns+` ORDER BY driver_id;`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: query drivers table: %w", err)
	}
	defer rows.Close()

	drivers := make([]*domain.Driver, 0, 64)
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("list drivers: scan row: %w", err)
		}
		drivers = append(drivers, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drivers: row iteration: %w", err)
	}

	return drivers, nil
}

func (p *PostgresDriverRepository) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	if p.DB == nil {
		return nil, errors.New("postgres driver repository: DB is nil")
	}

	row := p.DB.QueryRowContext(ctx, selectDriverColumns+` WHERE driver_id = $1;`, driverID)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get driver %q: %w", driverID, domain.ErrDriverNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get driver %q: %w", driverID, err)
	}
	return d, nil
}

// UpsertDriver inserts or replaces a driver row.
func (p *PostgresDriverRepository) UpsertDriver(ctx context.Context, d domain.Driver) error {
	if _, err := p.DB.ExecContext(ctx, upsertDriverQuery, driverArgs(d)...); err != nil {
		return fmt.Errorf("upsert driver %q: %w", d.ID, err)
	}
	return nil
}

func (p *PostgresDriverRepository) UpdateDriverStatus(ctx context.Context, driverID string, status domain.DriverStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update driver status %q: %w", status, domain.ErrInvalidStatus)
	}

	res, err := p.DB.ExecContext(ctx, `UPDATE drivers SET status = $2 WHERE driver_id = $1;`, driverID, string(status))
	if err != nil {
		return fmt.Errorf("update driver status %q: %w", driverID, err)
	}
	return expectOneRow(res, fmt.Sprintf("update driver status %q", driverID), domain.ErrDriverNotFound)
}

func (p *PostgresDriverRepository) UpdateDriverLocation(ctx context.Context, loc domain.DriverLocation) error {
	res, err := p.DB.ExecContext(ctx, `
	UPDATE drivers
	SET lat = $2,
		lon = $3,
		location_updated_at = $4
	WHERE driver_id = $1;
	`, loc.DriverID, loc.Location.Lat, loc.Location.Lon, loc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update driver location %q: %w", loc.DriverID, err)
	}
	return expectOneRow(res, fmt.Sprintf("update driver location %q", loc.DriverID), domain.ErrDriverNotFound)
}

func expectOneRow(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}
