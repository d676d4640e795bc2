package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres-backed implementation of the order and stats ports.
type PostgresOrderRepository struct{ DB *sql.DB }

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{DB: db}
}

func (p *PostgresOrderRepository) CreateOrder(ctx context.Context, o domain.OrderState) error {
	if p.DB == nil {
		return errors.New("postgres order repository: DB is nil")
	}

	_, err := p.DB.ExecContext(ctx, `
	INSERT INTO orders (order_id, customer_id, status, total, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5);
	`, o.OrderID, o.CustomerID, string(o.Status), o.Total, o.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("create order %q: %w", o.OrderID, domain.ErrOrderExists)
	}
	if err != nil {
		return fmt.Errorf("create order %q: %w", o.OrderID, err)
	}
	return nil
}

func (p *PostgresOrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.OrderState, error) {
	if p.DB == nil {
		return nil, errors.New("postgres order repository: DB is nil")
	}

	var o domain.OrderState
	var status string
	err := p.DB.QueryRowContext(ctx, `
	SELECT order_id, customer_id, status, total, created_at, updated_at
	FROM orders
	WHERE order_id = $1;
	`, orderID).Scan(&o.OrderID, &o.CustomerID, &status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get order %q: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %q: %w", orderID, err)
	}

	o.Status = domain.OrderStatus(status)
	return &o, nil
}

// Append the event and move the order's status in one transaction.
func (p *PostgresOrderRepository) AppendStatusEvent(ctx context.Context, ev domain.OrderStatusEvent) (err error) {
	defer obs.Time(ctx, "orders.AppendStatusEvent")(&err)

	if p.DB == nil {
		return errors.New("postgres order repository: DB is nil")
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append status event: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	UPDATE orders
	SET status = $2,
		updated_at = $3
	WHERE order_id = $1;
	`, ev.OrderID, string(ev.Status), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append status event %s: update order: %w", ev.OrderID, err)
	}
	if err := expectOneRow(res, fmt.Sprintf("append status event %q", ev.OrderID), domain.ErrOrderNotFound); err != nil {
		return err
	}

	var lat, lon sql.NullFloat64
	if ev.DriverLocation != nil {
		lat = sql.NullFloat64{Float64: ev.DriverLocation.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: ev.DriverLocation.Lon, Valid: true}
	}
	var eta sql.NullTime
	if ev.ETA != nil {
		eta = sql.NullTime{Time: *ev.ETA, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO order_status_events (
		event_id, order_id, status, message, occurred_at, driver_id, lat, lon, eta
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, ev.ID, ev.OrderID, string(ev.Status), ev.Message, ev.Timestamp, ev.DriverID, lat, lon, eta)
	if err != nil {
		return fmt.Errorf("append status event %s: insert event: %w", ev.OrderID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append status event commit: %w", err)
	}
	return nil
}

func (p *PostgresOrderRepository) ListStatusEvents(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	order, err := p.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}

	rows, err := p.DB.QueryContext(ctx, `
	SELECT event_id, status, message, occurred_at, driver_id, lat, lon, eta
	FROM order_status_events
	WHERE order_id = $1
	ORDER BY occurred_at, event_id;
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status events %q: query: %w", orderID, err)
	}
	defer rows.Close()

	var events []domain.OrderStatusEvent
	for rows.Next() {
		ev := domain.OrderStatusEvent{OrderID: orderID, CustomerID: order.CustomerID}
		var status string
		var lat, lon sql.NullFloat64
		var eta sql.NullTime
		if err := rows.Scan(&ev.ID, &status, &ev.Message, &ev.Timestamp, &ev.DriverID, &lat, &lon, &eta); err != nil {
			return nil, fmt.Errorf("list status events %q: scan row: %w", orderID, err)
		}
		ev.Status = domain.OrderStatus(status)
		if lat.Valid && lon.Valid {
			ev.DriverLocation = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		}
		if eta.Valid {
			t := eta.Time
			ev.ETA = &t
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list status events %q: row iteration: %w", orderID, err)
	}
	return events, nil
}

// KitchenSnapshot mirrors MemoryStore.KitchenSnapshot with SQL aggregates.
func (p *PostgresOrderRepository) KitchenSnapshot(ctx context.Context, now time.Time) (_ *domain.KitchenSnapshot, err error) {
	defer obs.Time(ctx, "stats.KitchenSnapshot")(&err)

	snap := &domain.KitchenSnapshot{GeneratedAt: now}

	err = p.DB.QueryRowContext(ctx, `
	SELECT count(*) FROM orders WHERE status IN ('confirmed', 'preparing');
	`).Scan(&snap.ActiveOrders)
	if err != nil {
		return nil, fmt.Errorf("kitchen snapshot: count active: %w", err)
	}

	var next domain.QueuedOrder
	var status string
	err = p.DB.QueryRowContext(ctx, `
	SELECT o.order_id, o.status, o.total, COALESCE(c.confirmed_at, o.updated_at) AS since
	FROM orders o
	LEFT JOIN LATERAL (
		SELECT min(occurred_at) AS confirmed_at
		FROM order_status_events e
		WHERE e.order_id = o.order_id AND e.status = 'confirmed'
	) c ON true
	WHERE o.status IN ('confirmed', 'preparing')
	ORDER BY since, o.order_id
	LIMIT 1;
	`).Scan(&next.OrderID, &status, &next.Total, &next.Since)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("kitchen snapshot: next order: %w", err)
	default:
		next.Status = domain.OrderStatus(status)
		snap.NextOrder = &next
	}

	var avg sql.NullFloat64
	err = p.DB.QueryRowContext(ctx, `
	SELECT avg(extract(epoch FROM r.ready_at - COALESCE(c.confirmed_at, o.created_at))) / 60
	FROM orders o
	JOIN (
		SELECT order_id, min(occurred_at) AS ready_at
		FROM order_status_events
		WHERE status = 'ready_for_delivery'
		GROUP BY order_id
	) r ON r.order_id = o.order_id
	LEFT JOIN (
		SELECT order_id, min(occurred_at) AS confirmed_at
		FROM order_status_events
		WHERE status = 'confirmed'
		GROUP BY order_id
	) c ON c.order_id = o.order_id
	WHERE r.ready_at >= $1;
	`, startOfDay(now)).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("kitchen snapshot: average prep: %w", err)
	}
	snap.AveragePrepMinutes = avg.Float64

	return snap, nil
}

// DashboardSnapshot mirrors MemoryStore.DashboardSnapshot with SQL aggregates.
func (p *PostgresOrderRepository) DashboardSnapshot(ctx context.Context, now time.Time) (_ *domain.DashboardSnapshot, err error) {
	defer obs.Time(ctx, "stats.DashboardSnapshot")(&err)

	dayStart := startOfDay(now)
	snap := &domain.DashboardSnapshot{GeneratedAt: now}

	err = p.DB.QueryRowContext(ctx, `
	SELECT
		count(*) FILTER (WHERE created_at >= $1),
		COALESCE(sum(total) FILTER (WHERE created_at >= $1 AND status <> 'cancelled'), 0),
		count(*) FILTER (WHERE status NOT IN ('delivered', 'cancelled'))
	FROM orders;
	`, dayStart).Scan(&snap.TodayOrders, &snap.TodayRevenue, &snap.ActiveOrders)
	if err != nil {
		return nil, fmt.Errorf("dashboard snapshot: totals: %w", err)
	}

	var avg sql.NullFloat64
	err = p.DB.QueryRowContext(ctx, `
	SELECT avg(extract(epoch FROM d.delivered_at - o.created_at)) / 60
	FROM orders o
	JOIN (
		SELECT order_id, min(occurred_at) AS delivered_at
		FROM order_status_events
		WHERE status = 'delivered'
		GROUP BY order_id
	) d ON d.order_id = o.order_id
	WHERE o.created_at >= $1;
	`, dayStart).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("dashboard snapshot: average delivery: %w", err)
	}
	snap.AverageDeliveryMinutes = avg.Float64

	return snap, nil
}
