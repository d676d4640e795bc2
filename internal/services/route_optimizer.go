package services

import (
	"cmp"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/geo"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Scale factors for the estimated comparison routes. These are derived from
// the primary route's totals, not from a second optimization run.
const (
	fastestDistanceFactor  = 0.95
	fastestDurationFactor  = 0.9
	shortestDistanceFactor = 0.85
	shortestDurationFactor = 1.1
)

type OptimizeOptions struct {
	// Start overrides the driver's current location as the route origin.
	Start         *domain.Coordinates
	DepartAt      time.Time
	TrafficFactor float64
	RouteID       string
}

type OptimizeResult struct {
	Route *domain.Route
	// Stops that did not fit the vehicle and must be re-submitted later.
	Deferred []domain.Stop
}

// OptimizeRoute admits, sequences and times stops for a single driver.
//
// Admission keeps the highest-priority stops up to the vehicle capacity.
// Sequencing is a greedy nearest-neighbor walk that discounts the distance to
// higher-priority stops. It is an approximation, not an optimal tour, and runs
// in O(n²) for n admitted stops.
func OptimizeRoute(driver *domain.Driver, stops []domain.Stop, opts OptimizeOptions) (*OptimizeResult, error) {
	if err := driver.CheckCapacity(); err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}

	start := driver.Location
	if opts.Start != nil {
		start = *opts.Start
	}
	if err := start.Validate(); err != nil {
		return nil, fmt.Errorf("optimize route: origin: %w", err)
	}

	departAt := opts.DepartAt
	if departAt.IsZero() {
		departAt = time.Now().UTC()
	}

	routeID := opts.RouteID
	if routeID == "" {
		routeID = uuid.NewString()
	}

	route := domain.NewRoute(routeID, driver.ID, driver.Vehicle.Capacity, departAt)
	route.CreatedAt = departAt

	if len(stops) == 0 {
		route.Alternatives = estimatedAlternatives(route)
		return &OptimizeResult{Route: route, Deferred: []domain.Stop{}}, nil
	}

	seen := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		if _, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("optimize route: stop %q: %w", s.ID, domain.ErrDuplicateStop)
		}
		seen[s.ID] = struct{}{}

		if err := s.Location.Validate(); err != nil {
			return nil, fmt.Errorf("optimize route: stop %q: %w", s.ID, err)
		}
	}

	admitted, deferred := admitStops(stops, driver.Vehicle.Capacity)

	sequence := sequenceStops(start, admitted, true)
	legs, err := timeSequence(start, departAt, sequence, driver.Vehicle.Mode, opts.TrafficFactor)
	if err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}

	for _, leg := range legs {
		if err := route.Append(leg); err != nil {
			return nil, fmt.Errorf("optimize route: %w", err)
		}
	}

	route.TotalDurationMinutes = durationMinutes(departAt, legs)
	route.EfficiencyScore = EfficiencyScore(route.TotalDurationMinutes, len(route.Stops))

	alternatives := estimatedAlternatives(route)
	nearest, err := nearestFirstAlternative(start, departAt, admitted, driver.Vehicle.Mode, opts.TrafficFactor)
	if err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}
	route.Alternatives = append(alternatives, nearest)

	return &OptimizeResult{Route: route, Deferred: deferred}, nil
}

// admitStops orders stops by priority, then by window deadline (earliest latest-bound
// first, unbounded last), then by id, and truncates to capacity.
func admitStops(stops []domain.Stop, capacity int) (admitted, deferred []domain.Stop) {
	ordered := slices.Clone(stops)
	slices.SortStableFunc(ordered, func(a, b domain.Stop) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}

		da, okA := a.Deadline()
		db, okB := b.Deadline()
		switch {
		case okA && okB:
			if c := da.Compare(db); c != 0 {
				return c
			}
		case okA:
			return -1
		case okB:
			return 1
		}

		return cmp.Compare(a.ID, b.ID)
	})

	if len(ordered) <= capacity {
		return ordered, []domain.Stop{}
	}
	return ordered[:capacity], ordered[capacity:]
}

// sequenceStops performs the nearest-neighbor walk. With weighted set the
// distance to each candidate is multiplied by its priority weight.
func sequenceStops(start domain.Coordinates, stops []domain.Stop, weighted bool) []domain.Stop {
	remaining := slices.Clone(stops)
	sequence := make([]domain.Stop, 0, len(stops))
	current := start

	for len(remaining) > 0 {
		bestIdx := -1
		bestCost := math.Inf(1)

		// Select next stop by minimum (weighted) distance. Tie-breaker keeps ordering deterministic.
		for i, s := range remaining {
			cost := geo.Distance(current, s.Location)
			if weighted {
				cost *= s.Priority.Weight()
			}
			if cost < bestCost || (cost == bestCost && s.ID < remaining[bestIdx].ID) {
				bestCost = cost
				bestIdx = i
			}
		}

		next := remaining[bestIdx]
		sequence = append(sequence, next)
		remaining = slices.Delete(remaining, bestIdx, bestIdx+1)
		current = next.Location
	}

	return sequence
}

// timeSequence walks a fixed visiting order and computes per-stop timing.
// Arrival is the previous departure plus travel; departure adds the on-site duration.
func timeSequence(
	start domain.Coordinates,
	departAt time.Time,
	sequence []domain.Stop,
	mode domain.VehicleMode,
	trafficFactor float64,
) ([]domain.RouteStop, error) {
	legs := make([]domain.RouteStop, 0, len(sequence))
	current := start
	clock := departAt

	for _, s := range sequence {
		meters := geo.Distance(current, s.Location)
		minutes, err := geo.TravelTime(meters, mode, trafficFactor)
		if err != nil {
			return nil, fmt.Errorf("time stop %q: %w", s.ID, err)
		}

		arrive := clock.Add(time.Duration(minutes) * time.Minute)
		depart := arrive.Add(time.Duration(max(0, s.ServiceMinutes)) * time.Minute)

		legs = append(legs, domain.RouteStop{
			Stop:                    s,
			ArriveAt:                arrive,
			DepartAt:                depart,
			DistanceFromPrevMeters:  meters,
			DurationFromPrevMinutes: minutes,
		})

		current = s.Location
		clock = depart
	}

	return legs, nil
}

// EfficiencyScore rewards fewer minutes per stop, clamped to [0, 100].
// It is an operator-facing signal only. A route without stops scores 0.
func EfficiencyScore(totalDurationMinutes int, stopCount int) float64 {
	if stopCount <= 0 {
		return 0
	}
	score := 100 - (float64(totalDurationMinutes)/float64(stopCount))*2
	return math.Max(0, math.Min(100, score))
}

func durationMinutes(departAt time.Time, legs []domain.RouteStop) int {
	if len(legs) == 0 {
		return 0
	}
	return int(legs[len(legs)-1].DepartAt.Sub(departAt) / time.Minute)
}

// estimatedAlternatives scales the primary totals. They are illustrative
// comparison points and are marked Estimated.
func estimatedAlternatives(route *domain.Route) []domain.RouteAlternative {
	scaleMinutes := func(m int, f float64) int { return int(math.Round(float64(m) * f)) }

	return []domain.RouteAlternative{
		{
			Name:            "fastest",
			DistanceMeters:  route.TotalDistanceMeters * fastestDistanceFactor,
			DurationMinutes: scaleMinutes(route.TotalDurationMinutes, fastestDurationFactor),
			Estimated:       true,
		},
		{
			Name:            "shortest",
			DistanceMeters:  route.TotalDistanceMeters * shortestDistanceFactor,
			DurationMinutes: scaleMinutes(route.TotalDurationMinutes, shortestDurationFactor),
			Estimated:       true,
		},
	}
}

// nearestFirstAlternative sequences the same admitted stops ignoring priority,
// giving a comparison point that was actually computed.
func nearestFirstAlternative(
	start domain.Coordinates,
	departAt time.Time,
	admitted []domain.Stop,
	mode domain.VehicleMode,
	trafficFactor float64,
) (domain.RouteAlternative, error) {
	legs, err := timeSequence(start, departAt, sequenceStops(start, admitted, false), mode, trafficFactor)
	if err != nil {
		return domain.RouteAlternative{}, errors.Join(errors.New("nearest-first alternative"), err)
	}

	total := 0.0
	for _, l := range legs {
		total += l.DistanceFromPrevMeters
	}

	return domain.RouteAlternative{
		Name:            "nearest_first",
		DistanceMeters:  total,
		DurationMinutes: durationMinutes(departAt, legs),
		Estimated:       false,
	}, nil
}
