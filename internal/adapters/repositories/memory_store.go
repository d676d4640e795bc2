package repositories

import (
	"context"
	"fmt"
	"food-dispatch-service/internal/domain"
	"slices"
	"strings"
	"sync"
	"time"
)

type memoryOrder struct {
	state  domain.OrderState
	events []domain.OrderStatusEvent
}

// In-memory implementation of the driver, route, order and stats ports.
// Used when no DATABASE_URL is configured and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[string]domain.Driver
	routes  map[string]domain.Route
	orders  map[string]*memoryOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers: make(map[string]domain.Driver),
		routes:  make(map[string]domain.Route),
		orders:  make(map[string]*memoryOrder),
	}
}

// PutDriver inserts or replaces a driver.
func (m *MemoryStore) PutDriver(d domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

// PutOrder inserts or replaces an order's current state.
func (m *MemoryStore) PutOrder(o domain.OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if existing, ok := m.orders[o.OrderID]; ok {
		existing.state = o
		return
	}
	m.orders[o.OrderID] = &memoryOrder{state: o}
}

func (m *MemoryStore) ListDrivers(ctx context.Context) ([]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		d := d
		out = append(out, &d)
	}
	slices.SortFunc(out, func(a, b *domain.Driver) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.drivers[driverID]
	if !ok {
		return nil, fmt.Errorf("get driver %q: %w", driverID, domain.ErrDriverNotFound)
	}
	return &d, nil
}

func (m *MemoryStore) UpdateDriverStatus(ctx context.Context, driverID string, status domain.DriverStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update driver status %q: %w", status, domain.ErrInvalidStatus)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[driverID]
	if !ok {
		return fmt.Errorf("update driver status %q: %w", driverID, domain.ErrDriverNotFound)
	}
	d.Status = status
	m.drivers[driverID] = d
	return nil
}

func (m *MemoryStore) UpdateDriverLocation(ctx context.Context, loc domain.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[loc.DriverID]
	if !ok {
		return fmt.Errorf("update driver location %q: %w", loc.DriverID, domain.ErrDriverNotFound)
	}
	d.Location = loc.Location
	d.LocationUpdatedAt = loc.UpdatedAt
	m.drivers[loc.DriverID] = d
	return nil
}

func (m *MemoryStore) SaveRoute(ctx context.Context, route *domain.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *route
	r.Stops = slices.Clone(route.Stops)
	r.Alternatives = slices.Clone(route.Alternatives)
	m.routes[r.ID] = r
	return nil
}

func (m *MemoryStore) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("get route %q: %w", routeID, domain.ErrRouteNotFound)
	}
	r.Stops = slices.Clone(r.Stops)
	r.Alternatives = slices.Clone(r.Alternatives)
	return &r, nil
}

func (m *MemoryStore) UpdateRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.routes[routeID]
	if !ok {
		return fmt.Errorf("update route status %q: %w", routeID, domain.ErrRouteNotFound)
	}
	r.Status = status
	m.routes[routeID] = r
	return nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o domain.OrderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.OrderID]; ok {
		return fmt.Errorf("create order %q: %w", o.OrderID, domain.ErrOrderExists)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	m.orders[o.OrderID] = &memoryOrder{state: o}
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.OrderState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("get order %q: %w", orderID, domain.ErrOrderNotFound)
	}
	state := o.state
	return &state, nil
}

func (m *MemoryStore) AppendStatusEvent(ctx context.Context, event domain.OrderStatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[event.OrderID]
	if !ok {
		return fmt.Errorf("append status event %q: %w", event.OrderID, domain.ErrOrderNotFound)
	}
	o.events = append(o.events, event)
	o.state.Status = event.Status
	o.state.UpdatedAt = event.Timestamp
	return nil
}

func (m *MemoryStore) ListStatusEvents(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("list status events %q: %w", orderID, domain.ErrOrderNotFound)
	}
	return slices.Clone(o.events), nil
}

// KitchenSnapshot reports orders currently in the kitchen. The next order is
// the one that has waited longest; average prep time covers orders that
// reached ready_for_delivery today.
func (m *MemoryStore) KitchenSnapshot(ctx context.Context, now time.Time) (*domain.KitchenSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dayStart := startOfDay(now)
	snap := &domain.KitchenSnapshot{GeneratedAt: now}

	var prepTotal time.Duration
	prepCount := 0

	for _, o := range m.orders {
		if o.state.Status.InKitchen() {
			snap.ActiveOrders++
			since := o.state.UpdatedAt
			if confirmed, ok := eventTime(o.events, domain.OrderConfirmed); ok {
				since = confirmed
			}
			if snap.NextOrder == nil || since.Before(snap.NextOrder.Since) ||
				(since.Equal(snap.NextOrder.Since) && o.state.OrderID < snap.NextOrder.OrderID) {
				snap.NextOrder = &domain.QueuedOrder{
					OrderID: o.state.OrderID,
					Status:  o.state.Status,
					Since:   since,
					Total:   o.state.Total,
				}
			}
		}

		ready, ok := eventTime(o.events, domain.OrderReadyForDelivery)
		if !ok || ready.Before(dayStart) {
			continue
		}
		started, ok := eventTime(o.events, domain.OrderConfirmed)
		if !ok {
			started = o.state.CreatedAt
		}
		prepTotal += ready.Sub(started)
		prepCount++
	}

	if prepCount > 0 {
		snap.AveragePrepMinutes = prepTotal.Minutes() / float64(prepCount)
	}
	return snap, nil
}

// DashboardSnapshot reports today's order volume, revenue and delivery time.
// Cancelled orders count toward volume but not revenue.
func (m *MemoryStore) DashboardSnapshot(ctx context.Context, now time.Time) (*domain.DashboardSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dayStart := startOfDay(now)
	snap := &domain.DashboardSnapshot{GeneratedAt: now}

	var deliveryTotal time.Duration
	deliveryCount := 0

	for _, o := range m.orders {
		if o.state.Status.Active() {
			snap.ActiveOrders++
		}
		if o.state.CreatedAt.Before(dayStart) {
			continue
		}

		snap.TodayOrders++
		if o.state.Status != domain.OrderCancelled {
			snap.TodayRevenue += o.state.Total
		}

		if delivered, ok := eventTime(o.events, domain.OrderDelivered); ok {
			deliveryTotal += delivered.Sub(o.state.CreatedAt)
			deliveryCount++
		}
	}

	if deliveryCount > 0 {
		snap.AverageDeliveryMinutes = deliveryTotal.Minutes() / float64(deliveryCount)
	}
	return snap, nil
}

func eventTime(events []domain.OrderStatusEvent, status domain.OrderStatus) (time.Time, bool) {
	for _, e := range events {
		if e.Status == status {
			return e.Timestamp, true
		}
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
