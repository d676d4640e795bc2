package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
)

// Postgres-backed implementation of the RouteRepository port. Stops and
// alternatives are stored as JSONB since a route is never queried by stop.
type PostgresRouteRepository struct{ DB *sql.DB }

func NewPostgresRouteRepository(db *sql.DB) *PostgresRouteRepository {
	return &PostgresRouteRepository{DB: db}
}

func (p *PostgresRouteRepository) SaveRoute(ctx context.Context, route *domain.Route) (err error) {
	defer obs.Time(ctx, "routes.Save")(&err)

	if p.DB == nil {
		return errors.New("postgres route repository: DB is nil")
	}

	stops, err := json.Marshal(route.Stops)
	if err != nil {
		return fmt.Errorf("save route %s: encode stops: %w", route.ID, err)
	}
	alternatives, err := json.Marshal(route.Alternatives)
	if err != nil {
		return fmt.Errorf("save route %s: encode alternatives: %w", route.ID, err)
	}

	_, err = p.DB.ExecContext(ctx, `
	INSERT INTO routes (
		route_id, driver_id, status, capacity, depart_at,
		total_distance_meters, total_duration_minutes, total_value, efficiency,
		stops, alternatives, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (route_id) DO UPDATE
	SET status = EXCLUDED.status,
		stops = EXCLUDED.stops,
		alternatives = EXCLUDED.alternatives,
		total_distance_meters = EXCLUDED.total_distance_meters,
		total_duration_minutes = EXCLUDED.total_duration_minutes,
		total_value = EXCLUDED.total_value,
		efficiency = EXCLUDED.efficiency;
	`,
		route.ID, route.DriverID, string(route.Status), route.Capacity, route.DepartAt,
		route.TotalDistanceMeters, route.TotalDurationMinutes, route.TotalValue, route.EfficiencyScore,
		stops, alternatives, route.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save route %s: %w", route.ID, err)
	}
	return nil
}

func (p *PostgresRouteRepository) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	if p.DB == nil {
		return nil, errors.New("postgres route repository: DB is nil")
	}

	var r domain.Route
	var status string
	var stops, alternatives []byte

	err := p.DB.QueryRowContext(ctx, `
	SELECT
		route_id, driver_id, status, capacity, depart_at,
		total_distance_meters, total_duration_minutes, total_value, efficiency,
		stops, alternatives, created_at
	FROM routes
	WHERE route_id = $1;
	`, routeID).Scan(
		&r.ID, &r.DriverID, &status, &r.Capacity, &r.DepartAt,
		&r.TotalDistanceMeters, &r.TotalDurationMinutes, &r.TotalValue, &r.EfficiencyScore,
		&stops, &alternatives, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get route %q: %w", routeID, domain.ErrRouteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route %q: %w", routeID, err)
	}

	r.Status = domain.RouteStatus(status)
	if err := json.Unmarshal(stops, &r.Stops); err != nil {
		return nil, fmt.Errorf("get route %q: decode stops: %w", routeID, err)
	}
	if err := json.Unmarshal(alternatives, &r.Alternatives); err != nil {
		return nil, fmt.Errorf("get route %q: decode alternatives: %w", routeID, err)
	}
	return &r, nil
}

func (p *PostgresRouteRepository) UpdateRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE routes SET status = $2 WHERE route_id = $1;`, routeID, string(status))
	if err != nil {
		return fmt.Errorf("update route status %q: %w", routeID, err)
	}
	return expectOneRow(res, fmt.Sprintf("update route status %q", routeID), domain.ErrRouteNotFound)
}
