package repositories

import (
	"context"
	"errors"
	"food-dispatch-service/internal/domain"
	"math"
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func appendEvents(t *testing.T, m *MemoryStore, orderID string, steps ...any) {
	t.Helper()

	for i := 0; i < len(steps); i += 2 {
		ev := domain.OrderStatusEvent{
			ID:        orderID + "-" + string(steps[i].(domain.OrderStatus)),
			OrderID:   orderID,
			Status:    steps[i].(domain.OrderStatus),
			Timestamp: steps[i+1].(time.Time),
		}
		if err := m.AppendStatusEvent(context.Background(), ev); err != nil {
			t.Fatalf("append %s: %v", ev.ID, err)
		}
	}
}

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()

	m := NewMemoryStore()
	m.PutOrder(domain.OrderState{OrderID: "o1", Status: domain.OrderPending, Total: 20, CreatedAt: at(10, 0)})
	appendEvents(t, m, "o1",
		domain.OrderConfirmed, at(10, 5),
		domain.OrderPreparing, at(10, 10),
		domain.OrderReadyForDelivery, at(10, 25),
		domain.OrderOutForDelivery, at(10, 30),
		domain.OrderDelivered, at(10, 55),
	)

	m.PutOrder(domain.OrderState{OrderID: "o2", Status: domain.OrderPending, Total: 30, CreatedAt: at(11, 0)})
	appendEvents(t, m, "o2", domain.OrderConfirmed, at(11, 10))

	m.PutOrder(domain.OrderState{OrderID: "o3", Status: domain.OrderPending, Total: 15, CreatedAt: at(11, 0)})
	appendEvents(t, m, "o3", domain.OrderConfirmed, at(11, 2), domain.OrderPreparing, at(11, 20))

	m.PutOrder(domain.OrderState{OrderID: "o4", Status: domain.OrderCancelled, Total: 50, CreatedAt: at(10, 0).Add(-14 * time.Hour)})
	m.PutOrder(domain.OrderState{OrderID: "o5", Status: domain.OrderCancelled, Total: 40, CreatedAt: at(12, 0)})
	return m
}

func TestMemoryStoreKitchenSnapshot(t *testing.T) {
	m := seededStore(t)

	snap, err := m.KitchenSnapshot(context.Background(), at(15, 0))
	if err != nil {
		t.Fatalf("kitchen snapshot: %v", err)
	}

	if snap.ActiveOrders != 2 {
		t.Fatalf("active orders = %d, want 2", snap.ActiveOrders)
	}
	if snap.NextOrder == nil || snap.NextOrder.OrderID != "o3" || snap.NextOrder.Status != domain.OrderPreparing {
		t.Fatalf("next order = %+v, want o3 preparing", snap.NextOrder)
	}
	if !snap.NextOrder.Since.Equal(at(11, 2)) {
		t.Fatalf("next order since %s, want confirmation time", snap.NextOrder.Since)
	}
	if math.Abs(snap.AveragePrepMinutes-20) > 1e-9 {
		t.Fatalf("average prep = %v, want 20", snap.AveragePrepMinutes)
	}
}

func TestMemoryStoreDashboardSnapshot(t *testing.T) {
	m := seededStore(t)

	snap, err := m.DashboardSnapshot(context.Background(), at(15, 0))
	if err != nil {
		t.Fatalf("dashboard snapshot: %v", err)
	}

	if snap.TodayOrders != 4 {
		t.Fatalf("today orders = %d, want 4", snap.TodayOrders)
	}
	if math.Abs(snap.TodayRevenue-65) > 1e-9 {
		t.Fatalf("today revenue = %v, want 65 (cancelled excluded)", snap.TodayRevenue)
	}
	if snap.ActiveOrders != 2 {
		t.Fatalf("active orders = %d, want 2", snap.ActiveOrders)
	}
	if math.Abs(snap.AverageDeliveryMinutes-55) > 1e-9 {
		t.Fatalf("average delivery = %v, want 55", snap.AverageDeliveryMinutes)
	}
}

func TestMemoryStoreEmptySnapshots(t *testing.T) {
	m := NewMemoryStore()

	kitchen, err := m.KitchenSnapshot(context.Background(), at(9, 0))
	if err != nil || kitchen.ActiveOrders != 0 || kitchen.NextOrder != nil || kitchen.AveragePrepMinutes != 0 {
		t.Fatalf("empty kitchen snapshot = %+v, %v", kitchen, err)
	}
	dash, err := m.DashboardSnapshot(context.Background(), at(9, 0))
	if err != nil || dash.TodayOrders != 0 || dash.TodayRevenue != 0 {
		t.Fatalf("empty dashboard snapshot = %+v, %v", dash, err)
	}
}

func TestMemoryStoreOrdersAndDrivers(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	o := domain.OrderState{OrderID: "o1", Status: domain.OrderPending, CreatedAt: at(9, 0)}
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := m.CreateOrder(ctx, o); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("duplicate create err = %v, want ErrOrderExists", err)
	}
	if err := m.AppendStatusEvent(ctx, domain.OrderStatusEvent{OrderID: "nope"}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("append to missing order err = %v", err)
	}

	m.PutDriver(domain.Driver{ID: "d2", Status: domain.DriverAvailable})
	m.PutDriver(domain.Driver{ID: "d1", Status: domain.DriverOffline})

	drivers, _ := m.ListDrivers(ctx)
	if len(drivers) != 2 || drivers[0].ID != "d1" {
		t.Fatalf("drivers not ordered by id: %+v", drivers)
	}

	if err := m.UpdateDriverStatus(ctx, "d1", "asleep"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("invalid status err = %v", err)
	}
	if err := m.UpdateDriverStatus(ctx, "ghost", domain.DriverBusy); !errors.Is(err, domain.ErrDriverNotFound) {
		t.Fatalf("missing driver err = %v", err)
	}

	loc := domain.DriverLocation{DriverID: "d2", Location: domain.Coordinates{Lat: 1, Lon: 2}, UpdatedAt: at(9, 30)}
	if err := m.UpdateDriverLocation(ctx, loc); err != nil {
		t.Fatalf("update location: %v", err)
	}
	d, _ := m.GetDriver(ctx, "d2")
	if d.Location != loc.Location || !d.LocationUpdatedAt.Equal(loc.UpdatedAt) {
		t.Fatalf("location not stored: %+v", d)
	}
}
