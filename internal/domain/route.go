package domain

import (
	"fmt"
	"time"
)

type RouteStatus string

const (
	RoutePlanned   RouteStatus = "planned"
	RouteActive    RouteStatus = "active"
	RouteCompleted RouteStatus = "completed"
	RouteCancelled RouteStatus = "cancelled"
)

var routeTransitions = map[RouteStatus][]RouteStatus{
	RoutePlanned: {RouteActive, RouteCancelled},
	RouteActive:  {RouteCompleted, RouteCancelled},
}

// Represents a single stop in a delivery route.
// A RouteStop corresponds to arriving at a specific destination at a computed time
// and leaving it after the stop's on-site duration.
type RouteStop struct {
	Stop                    Stop      `json:"stop"`
	ArriveAt                time.Time `json:"estimatedArrival"`
	DepartAt                time.Time `json:"estimatedDeparture"`
	DistanceFromPrevMeters  float64   `json:"distanceFromPrevious"`
	DurationFromPrevMinutes int       `json:"durationFromPrevious"`
}

// Comparison point reported next to the primary route.
// Estimated alternatives are derived by scaling the primary route's totals and
// were never sequenced on their own.
type RouteAlternative struct {
	Name            string  `json:"name"`
	DistanceMeters  float64 `json:"totalDistance"`
	DurationMinutes int     `json:"totalDuration"`
	Estimated       bool    `json:"estimated"`
}

// Represents the planned delivery route for a single driver.
// A Route is the output of the route optimizer: an ordered, timed sequence of
// stops with aggregate metrics. Only Status changes after creation.
type Route struct {
	ID                   string             `json:"id"`
	DriverID             string             `json:"driverId"`
	Status               RouteStatus        `json:"status"`
	Capacity             int                `json:"-"`
	DepartAt             time.Time          `json:"departAt"`
	Stops                []RouteStop        `json:"stops"`
	TotalDistanceMeters  float64            `json:"totalDistance"`
	TotalDurationMinutes int                `json:"totalDuration"`
	TotalValue           float64            `json:"totalValue"`
	EfficiencyScore      float64            `json:"efficiency"`
	Alternatives         []RouteAlternative `json:"alternatives"`
	CreatedAt            time.Time          `json:"createdAt"`
}

func NewRoute(id, driverID string, capacity int, departAt time.Time) *Route {
	return &Route{
		ID:           id,
		DriverID:     driverID,
		Status:       RoutePlanned,
		Capacity:     capacity,
		DepartAt:     departAt,
		Stops:        []RouteStop{},
		Alternatives: []RouteAlternative{},
	}
}

// Append a sequenced stop to the route.
// Fails when the route is at capacity or the stop is already on it.
func (r *Route) Append(rs RouteStop) error {
	if len(r.Stops) >= r.Capacity {
		return fmt.Errorf("append stop: route %s is at full capacity (capacity=%d): %w", r.ID, r.Capacity, ErrInvalidCapacity)
	}
	for _, existing := range r.Stops {
		if existing.Stop.ID == rs.Stop.ID {
			return fmt.Errorf("append stop: route %s stop %q: %w", r.ID, rs.Stop.ID, ErrDuplicateStop)
		}
	}

	r.Stops = append(r.Stops, rs)
	r.TotalDistanceMeters += rs.DistanceFromPrevMeters
	r.TotalValue += rs.Stop.OrderValue
	return nil
}

// Advance moves the route along planned -> active -> completed/cancelled.
func (r *Route) Advance(to RouteStatus) error {
	for _, next := range routeTransitions[r.Status] {
		if next == to {
			r.Status = to
			return nil
		}
	}
	return &TransitionError{Entity: "route", ID: r.ID, From: string(r.Status), To: string(to)}
}

// StopIDs returns stop ids in visiting order.
func (r *Route) StopIDs() []string {
	ids := make([]string, 0, len(r.Stops))
	for _, s := range r.Stops {
		ids = append(ids, s.Stop.ID)
	}
	return ids
}
