package services

import (
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/geo"
	"math/rand"
	"testing"
	"time"
)

var (
	testOrigin = domain.Coordinates{Lat: 40.7128, Lon: -74.0060}
	testDepart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

func testDriver(id string, capacity int) *domain.Driver {
	return &domain.Driver{
		ID:       id,
		Name:     "Driver " + id,
		Status:   domain.DriverAvailable,
		Location: testOrigin,
		Vehicle:  domain.Vehicle{Mode: domain.ModeScooter, Capacity: capacity},
		Performance: domain.Performance{
			SuccessRate: 95,
			Rating:      4.5,
		},
	}
}

func stopAt(id string, priority domain.Priority, dLat, dLon float64) domain.Stop {
	return domain.Stop{
		ID:             id,
		OrderID:        "order-" + id,
		Location:       domain.Coordinates{Lat: testOrigin.Lat + dLat, Lon: testOrigin.Lon + dLon},
		Priority:       priority,
		ServiceMinutes: 5,
		OrderValue:     10,
	}
}

func TestOptimizeRoutePlacesUrgentStopFirst(t *testing.T) {
	// The urgent stop is slightly farther than n1 but its weight pulls it forward.
	stops := []domain.Stop{
		stopAt("n1", domain.PriorityNormal, 0.002, 0),
		stopAt("n2", domain.PriorityNormal, 0.004, 0.001),
		stopAt("u1", domain.PriorityUrgent, 0, 0.0035),
	}

	res, err := OptimizeRoute(testDriver("d1", 4), stops, OptimizeOptions{DepartAt: testDepart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Route.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(res.Route.Stops))
	}
	if got := res.Route.Stops[0].Stop.ID; got != "u1" {
		t.Fatalf("expected first stop u1, got %q (order %v)", got, res.Route.StopIDs())
	}
	if len(res.Deferred) != 0 {
		t.Fatalf("expected no deferred stops, got %d", len(res.Deferred))
	}
}

func TestOptimizeRouteEmptyStops(t *testing.T) {
	res, err := OptimizeRoute(testDriver("d1", 4), nil, OptimizeOptions{DepartAt: testDepart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := res.Route
	if len(r.Stops) != 0 || r.TotalDistanceMeters != 0 || r.TotalDurationMinutes != 0 {
		t.Fatalf("expected empty route, got stops=%d distance=%v duration=%d",
			len(r.Stops), r.TotalDistanceMeters, r.TotalDurationMinutes)
	}
	if r.EfficiencyScore != 0 {
		t.Fatalf("efficiency = %v, want 0", r.EfficiencyScore)
	}
}

func TestOptimizeRouteDefersStopsBeyondCapacity(t *testing.T) {
	late := testDepart.Add(time.Hour)
	early := testDepart.Add(20 * time.Minute)

	hiLate := stopAt("h-late", domain.PriorityHigh, 0.001, 0)
	hiLate.Window.Latest = &late
	hiEarly := stopAt("h-early", domain.PriorityHigh, 0.002, 0)
	hiEarly.Window.Latest = &early

	stops := []domain.Stop{
		stopAt("low", domain.PriorityLow, 0.001, 0.001),
		hiLate,
		stopAt("normal", domain.PriorityNormal, 0.003, 0),
		stopAt("urgent", domain.PriorityUrgent, 0.004, 0),
		hiEarly,
		stopAt("h-open", domain.PriorityHigh, 0.0015, 0),
	}

	res, err := OptimizeRoute(testDriver("d1", 3), stops, OptimizeOptions{DepartAt: testDepart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	admitted := map[string]bool{}
	for _, id := range res.Route.StopIDs() {
		admitted[id] = true
	}
	for _, want := range []string{"urgent", "h-early", "h-late"} {
		if !admitted[want] {
			t.Fatalf("expected %s to be admitted, route = %v", want, res.Route.StopIDs())
		}
	}

	if len(res.Deferred) != 3 {
		t.Fatalf("expected 3 deferred stops, got %d", len(res.Deferred))
	}
	wantDeferred := []string{"h-open", "normal", "low"}
	for i, s := range res.Deferred {
		if s.ID != wantDeferred[i] {
			t.Fatalf("deferred[%d] = %s, want %s", i, s.ID, wantDeferred[i])
		}
	}
}

func TestOptimizeRouteTiming(t *testing.T) {
	a := stopAt("a", domain.PriorityNormal, 0.01, 0)
	a.ServiceMinutes = 4
	b := stopAt("b", domain.PriorityNormal, 0.02, 0)
	b.ServiceMinutes = 6

	res, err := OptimizeRoute(testDriver("d1", 2), []domain.Stop{b, a}, OptimizeOptions{
		DepartAt:      testDepart,
		TrafficFactor: 1.2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	legA, _ := geo.TravelTime(geo.Distance(testOrigin, a.Location), domain.ModeScooter, 1.2)
	legB, _ := geo.TravelTime(geo.Distance(a.Location, b.Location), domain.ModeScooter, 1.2)

	stops := res.Route.Stops
	if stops[0].Stop.ID != "a" || stops[1].Stop.ID != "b" {
		t.Fatalf("unexpected order %v", res.Route.StopIDs())
	}

	wantArriveA := testDepart.Add(time.Duration(legA) * time.Minute)
	if !stops[0].ArriveAt.Equal(wantArriveA) {
		t.Fatalf("arrive a = %v, want %v", stops[0].ArriveAt, wantArriveA)
	}
	if !stops[0].DepartAt.Equal(wantArriveA.Add(4 * time.Minute)) {
		t.Fatalf("depart a = %v", stops[0].DepartAt)
	}

	wantArriveB := stops[0].DepartAt.Add(time.Duration(legB) * time.Minute)
	if !stops[1].ArriveAt.Equal(wantArriveB) {
		t.Fatalf("arrive b = %v, want %v", stops[1].ArriveAt, wantArriveB)
	}

	wantTotal := legA + 4 + legB + 6
	if res.Route.TotalDurationMinutes != wantTotal {
		t.Fatalf("duration = %d, want %d", res.Route.TotalDurationMinutes, wantTotal)
	}
	if got, want := res.Route.EfficiencyScore, EfficiencyScore(wantTotal, 2); got != want {
		t.Fatalf("efficiency = %v, want %v", got, want)
	}
}

func TestOptimizeRouteAlternatives(t *testing.T) {
	stops := []domain.Stop{
		stopAt("a", domain.PriorityLow, 0.01, 0),
		stopAt("b", domain.PriorityUrgent, 0.02, 0.01),
	}

	res, err := OptimizeRoute(testDriver("d1", 2), stops, OptimizeOptions{DepartAt: testDepart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alts := res.Route.Alternatives
	if len(alts) != 3 {
		t.Fatalf("expected 3 alternatives, got %d", len(alts))
	}

	byName := map[string]domain.RouteAlternative{}
	for _, a := range alts {
		byName[a.Name] = a
	}

	fastest := byName["fastest"]
	if !fastest.Estimated || fastest.DistanceMeters != res.Route.TotalDistanceMeters*0.95 {
		t.Fatalf("unexpected fastest alternative %+v", fastest)
	}
	if !byName["shortest"].Estimated {
		t.Fatalf("shortest alternative should be estimated")
	}
	nearest, ok := byName["nearest_first"]
	if !ok || nearest.Estimated {
		t.Fatalf("nearest_first should be computed, got %+v", nearest)
	}
	if nearest.DistanceMeters <= 0 {
		t.Fatalf("nearest_first distance = %v", nearest.DistanceMeters)
	}
}

func TestOptimizeRouteRejectsInvalidInput(t *testing.T) {
	stops := []domain.Stop{
		stopAt("a", domain.PriorityNormal, 0.01, 0),
		stopAt("a", domain.PriorityHigh, 0.02, 0),
	}
	if _, err := OptimizeRoute(testDriver("d1", 4), stops, OptimizeOptions{}); !errors.Is(err, domain.ErrDuplicateStop) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateStop", err)
	}

	if _, err := OptimizeRoute(testDriver("d1", 0), stops[:1], OptimizeOptions{}); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("zero capacity err = %v, want ErrInvalidCapacity", err)
	}

	bad := stopAt("bad", domain.PriorityNormal, 0, 0)
	bad.Location.Lat = 120
	if _, err := OptimizeRoute(testDriver("d1", 4), []domain.Stop{bad}, OptimizeOptions{}); !errors.Is(err, domain.ErrInvalidCoordinates) {
		t.Fatalf("bad coordinates err = %v, want ErrInvalidCoordinates", err)
	}
}

func TestOptimizeRouteInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	priorities := []domain.Priority{domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh, domain.PriorityUrgent}

	for run := 0; run < 50; run++ {
		n := 1 + rng.Intn(12)
		capacity := 1 + rng.Intn(8)

		stops := make([]domain.Stop, 0, n)
		for i := 0; i < n; i++ {
			s := stopAt(fmt.Sprintf("s%02d", i), priorities[rng.Intn(len(priorities))],
				(rng.Float64()-0.5)*0.1, (rng.Float64()-0.5)*0.1)
			s.ServiceMinutes = rng.Intn(15)
			stops = append(stops, s)
		}

		res, err := OptimizeRoute(testDriver("d1", capacity), stops, OptimizeOptions{DepartAt: testDepart})
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}

		r := res.Route
		if len(r.Stops) > capacity {
			t.Fatalf("run %d: %d stops exceed capacity %d", run, len(r.Stops), capacity)
		}
		if len(r.Stops)+len(res.Deferred) != n {
			t.Fatalf("run %d: admitted %d + deferred %d != %d", run, len(r.Stops), len(res.Deferred), n)
		}

		seen := map[string]bool{}
		for _, id := range r.StopIDs() {
			if seen[id] {
				t.Fatalf("run %d: stop %s appears twice", run, id)
			}
			seen[id] = true
		}
		for _, s := range res.Deferred {
			if seen[s.ID] {
				t.Fatalf("run %d: stop %s both admitted and deferred", run, s.ID)
			}
			seen[s.ID] = true
		}

		if r.EfficiencyScore < 0 || r.EfficiencyScore > 100 {
			t.Fatalf("run %d: efficiency %v out of range", run, r.EfficiencyScore)
		}

		prev := testDepart
		for _, rs := range r.Stops {
			if rs.ArriveAt.Before(prev) || rs.DepartAt.Before(rs.ArriveAt) {
				t.Fatalf("run %d: timing goes backwards at %s", run, rs.Stop.ID)
			}
			prev = rs.DepartAt
		}
	}
}
