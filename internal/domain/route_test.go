package domain

import (
	"errors"
	"testing"
	"time"
)

func TestRouteAppend(t *testing.T) {
	// build test data
	departAt := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	route := NewRoute("r1", "d1", 2, departAt)

	stopA := Stop{ID: "A", OrderValue: 12.5}
	stopB := Stop{ID: "B", OrderValue: 7.5}
	stopC := Stop{ID: "C", OrderValue: 3}

	// call the method under test
	if err := route.Append(RouteStop{Stop: stopA, DistanceFromPrevMeters: 1000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := route.Append(RouteStop{Stop: stopA, DistanceFromPrevMeters: 10}); !errors.Is(err, ErrDuplicateStop) {
		t.Fatalf("duplicate append err = %v, want ErrDuplicateStop", err)
	}

	if err := route.Append(RouteStop{Stop: stopB, DistanceFromPrevMeters: 500}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := route.Append(RouteStop{Stop: stopC}); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("over capacity err = %v, want ErrInvalidCapacity", err)
	}

	// verify behavior
	if len(route.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(route.Stops))
	}
	if route.TotalDistanceMeters != 1500 {
		t.Errorf("distance = %v, want 1500", route.TotalDistanceMeters)
	}
	if route.TotalValue != 20 {
		t.Errorf("value = %v, want 20", route.TotalValue)
	}
}

func TestRouteAdvance(t *testing.T) {
	route := NewRoute("r1", "d1", 1, time.Now())

	if err := route.Advance(RouteCompleted); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("planned -> completed err = %v, want ErrIllegalTransition", err)
	}
	if err := route.Advance(RouteActive); err != nil {
		t.Fatalf("planned -> active: %v", err)
	}
	if err := route.Advance(RouteCompleted); err != nil {
		t.Fatalf("active -> completed: %v", err)
	}
	if err := route.Advance(RouteCancelled); err == nil {
		t.Fatalf("completed -> cancelled should fail")
	}
	if route.Status != RouteCompleted {
		t.Errorf("status = %s, want completed", route.Status)
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]OrderStatus{
		{OrderPending, OrderConfirmed},
		{OrderConfirmed, OrderPreparing},
		{OrderPreparing, OrderReadyForDelivery},
		{OrderReadyForDelivery, OrderOutForDelivery},
		{OrderOutForDelivery, OrderDelivered},
		{OrderPending, OrderCancelled},
		{OrderConfirmed, OrderCancelled},
	}
	for _, edge := range legal {
		if !CanTransition(edge[0], edge[1]) {
			t.Errorf("%s -> %s should be legal", edge[0], edge[1])
		}
	}

	illegal := [][2]OrderStatus{
		{OrderDelivered, OrderPreparing},
		{OrderCancelled, OrderPending},
		{OrderPreparing, OrderCancelled},
		{OrderPending, OrderPreparing},
		{OrderOutForDelivery, OrderReadyForDelivery},
		{OrderDelivered, OrderCancelled},
	}
	for _, edge := range illegal {
		if CanTransition(edge[0], edge[1]) {
			t.Errorf("%s -> %s should be illegal", edge[0], edge[1])
		}
	}
}

func TestCoordinatesValidate(t *testing.T) {
	if err := (Coordinates{Lat: 40.7, Lon: -74}).Validate(); err != nil {
		t.Fatalf("valid coordinate rejected: %v", err)
	}
	if err := (Coordinates{Lat: 91, Lon: 0}).Validate(); !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatalf("lat 91 err = %v", err)
	}
	if err := (Coordinates{Lat: 0, Lon: -181}).Validate(); !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatalf("lon -181 err = %v", err)
	}
}
