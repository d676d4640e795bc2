package services

import (
	"context"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
	"food-dispatch-service/internal/ports"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRouteTTL = 30 * time.Minute

	lowEfficiencyThreshold = 60
	longRouteMinutes       = 120
)

var errDriverClaimed = errors.New("driver claimed by another dispatch")

type DispatchRequest struct {
	Stops []domain.Stop
	// Origin overrides the driver's last known location.
	Origin *domain.Coordinates
	// DriverID pins the route to a specific driver instead of selecting one.
	DriverID string
	// Free-form hint echoed back to the caller.
	Criteria string
	DepartAt time.Time
}

type DriverSummary struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Phone    string             `json:"phone"`
	Vehicle  domain.Vehicle     `json:"vehicle"`
	Location domain.Coordinates `json:"location"`
}

type Recommendation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

type DispatchResult struct {
	Route           *domain.Route    `json:"route"`
	Driver          DriverSummary    `json:"driver"`
	ValidUntil      time.Time        `json:"validUntil"`
	Deferred        []domain.Stop    `json:"deferredStops"`
	Recommendations []Recommendation `json:"recommendations"`
	Criteria        string           `json:"criteria,omitempty"`
}

type DispatcherConfig struct {
	RouteTTL      time.Duration
	TrafficFactor float64
}

// Dispatcher turns a batch of stops into a persisted route for one driver.
// Concurrent calls are safe; stops and drivers held by an in-flight call are
// unavailable to other calls until it returns.
type Dispatcher struct {
	drivers  ports.DriverRepository
	routes   ports.RouteRepository
	geocoder ports.Geocoder
	log      *zap.Logger
	cfg      DispatcherConfig
	now      func() time.Time

	claims *claimSet
}

// NewDispatcher wires the dispatch service. geocoder may be nil, in which case
// every stop must carry coordinates.
func NewDispatcher(
	drivers ports.DriverRepository,
	routes ports.RouteRepository,
	geocoder ports.Geocoder,
	log *zap.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.RouteTTL <= 0 {
		cfg.RouteTTL = DefaultRouteTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		drivers:  drivers,
		routes:   routes,
		geocoder: geocoder,
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		claims:   newClaimSet(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (res *DispatchResult, err error) {
	defer obs.Time(ctx, "dispatch")(&err)

	if len(req.Stops) == 0 {
		return nil, fmt.Errorf("dispatch: %w", domain.ErrEmptyStops)
	}
	if req.Origin != nil {
		if err := req.Origin.Validate(); err != nil {
			return nil, fmt.Errorf("dispatch: origin: %w", err)
		}
	}

	stops, err := d.resolveStops(ctx, req.Stops)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	stopKeys := make([]string, 0, len(stops))
	for _, s := range stops {
		stopKeys = append(stopKeys, "stop:"+s.ID)
	}
	if !d.claims.acquire(stopKeys...) {
		return nil, fmt.Errorf("dispatch: %w", domain.ErrStopsInFlight)
	}
	defer d.claims.release(stopKeys...)

	driver, err := d.claimDriver(ctx, req.DriverID, len(stops))
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	defer d.claims.release("driver:" + driver.ID)

	if err := driver.CheckCapacity(); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	origin := req.Origin
	if origin == nil {
		if driver.Location.IsZero() {
			return nil, fmt.Errorf("dispatch: driver %q has no known location and no origin was given: %w",
				driver.ID, domain.ErrInvalidCoordinates)
		}
		loc := driver.Location
		origin = &loc
	}

	now := d.now()
	departAt := req.DepartAt
	if departAt.IsZero() {
		departAt = now
	}

	optimized, err := OptimizeRoute(driver, stops, OptimizeOptions{
		Start:         origin,
		DepartAt:      departAt,
		TrafficFactor: d.cfg.TrafficFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	route := optimized.Route

	if err := d.routes.SaveRoute(ctx, route); err != nil {
		d.log.Warn("persist route failed",
			zap.String("route_id", route.ID),
			zap.String("driver_id", driver.ID),
			zap.Error(err),
		)
	}

	if len(route.Stops) > 0 {
		if err := d.drivers.UpdateDriverStatus(ctx, driver.ID, domain.DriverBusy); err != nil {
			d.log.Warn("mark driver busy failed", zap.String("driver_id", driver.ID), zap.Error(err))
		}
	}

	d.log.Info("route dispatched",
		zap.String("route_id", route.ID),
		zap.String("driver_id", driver.ID),
		zap.Int("stops", len(route.Stops)),
		zap.Int("deferred", len(optimized.Deferred)),
		zap.Float64("distance_m", route.TotalDistanceMeters),
		zap.Int("duration_min", route.TotalDurationMinutes),
	)

	return &DispatchResult{
		Route: route,
		Driver: DriverSummary{
			ID:       driver.ID,
			Name:     driver.Name,
			Phone:    driver.Phone,
			Vehicle:  driver.Vehicle,
			Location: driver.Location,
		},
		ValidUntil:      now.Add(d.cfg.RouteTTL),
		Deferred:        optimized.Deferred,
		Recommendations: Recommend(route, optimized.Deferred),
		Criteria:        req.Criteria,
	}, nil
}

// AdvanceRoute moves a persisted route along its lifecycle. Completing or
// cancelling a route releases its driver.
func (d *Dispatcher) AdvanceRoute(ctx context.Context, routeID string, to domain.RouteStatus) (route *domain.Route, err error) {
	defer obs.Time(ctx, "advance_route")(&err)

	route, err = d.routes.GetRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("advance route: %w", err)
	}

	if err := route.Advance(to); err != nil {
		return nil, fmt.Errorf("advance route: %w", err)
	}

	if err := d.routes.UpdateRouteStatus(ctx, routeID, to); err != nil {
		return nil, fmt.Errorf("advance route: %w", err)
	}

	if to == domain.RouteCompleted || to == domain.RouteCancelled {
		if err := d.drivers.UpdateDriverStatus(ctx, route.DriverID, domain.DriverAvailable); err != nil {
			d.log.Warn("release driver failed", zap.String("driver_id", route.DriverID), zap.Error(err))
		}
	}

	return route, nil
}

// resolveStops validates stops and geocodes the ones submitted with only an address.
func (d *Dispatcher) resolveStops(ctx context.Context, in []domain.Stop) ([]domain.Stop, error) {
	stops := make([]domain.Stop, len(in))
	copy(stops, in)

	seen := make(map[string]struct{}, len(stops))
	var addresses []string

	for i := range stops {
		s := &stops[i]
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("stop #%d has no id: %w", i, domain.ErrInvalidInput)
		}
		if _, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("stop %q: %w", s.ID, domain.ErrDuplicateStop)
		}
		seen[s.ID] = struct{}{}

		p, err := domain.ParsePriority(string(s.Priority))
		if err != nil {
			return nil, fmt.Errorf("stop %q: %w", s.ID, err)
		}
		s.Priority = p

		if s.ServiceMinutes < 0 {
			return nil, fmt.Errorf("stop %q: negative service duration: %w", s.ID, domain.ErrInvalidInput)
		}

		if s.Location.IsZero() && strings.TrimSpace(s.Address) != "" {
			addresses = append(addresses, s.Address)
		}
	}

	if len(addresses) > 0 {
		if d.geocoder == nil {
			return nil, fmt.Errorf("stops without coordinates and no geocoder configured: %w", domain.ErrInvalidCoordinates)
		}
		coords, err := d.geocoder.Geocode(ctx, addresses)
		if err != nil {
			return nil, fmt.Errorf("geocode stops: %w", err)
		}
		for i := range stops {
			s := &stops[i]
			if !s.Location.IsZero() || strings.TrimSpace(s.Address) == "" {
				continue
			}
			c, ok := coords[domain.NormalizeAddress(s.Address)]
			if !ok {
				return nil, fmt.Errorf("stop %q: address %q could not be geocoded: %w", s.ID, s.Address, domain.ErrInvalidCoordinates)
			}
			s.Location = c
		}
	}

	for _, s := range stops {
		if s.Location.IsZero() {
			return nil, fmt.Errorf("stop %q has no location: %w", s.ID, domain.ErrInvalidCoordinates)
		}
		if err := s.Location.Validate(); err != nil {
			return nil, fmt.Errorf("stop %q: %w", s.ID, err)
		}
	}

	return stops, nil
}

// claimDriver returns a driver reserved for this call. A pinned driver must be
// available and unclaimed. Otherwise the best available unclaimed driver is chosen.
func (d *Dispatcher) claimDriver(ctx context.Context, driverID string, stopCount int) (*domain.Driver, error) {
	if driverID != "" {
		driver, err := d.tryClaim(ctx, driverID)
		if errors.Is(err, errDriverClaimed) {
			return nil, fmt.Errorf("driver %q is being dispatched: %w", driverID, domain.ErrDriverUnavailable)
		}
		return driver, err
	}

	drivers, err := d.drivers.ListDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	candidates := make([]*domain.Driver, 0, len(drivers))
	for _, drv := range drivers {
		if !d.claims.isHeld("driver:" + drv.ID) {
			candidates = append(candidates, drv)
		}
	}

	// The listing may be stale by the time a candidate is claimed.
	for len(candidates) > 0 {
		best, err := SelectDriver(candidates, stopCount)
		if err != nil {
			return nil, err
		}

		driver, err := d.tryClaim(ctx, best.Driver.ID)
		switch {
		case err == nil:
			return driver, nil
		case errors.Is(err, errDriverClaimed), errors.Is(err, domain.ErrDriverUnavailable):
			candidates = removeDriver(candidates, best.Driver.ID)
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("select driver: %w", domain.ErrNoDriversAvailable)
}

// tryClaim reserves a driver and re-reads it so a driver marked busy by a call
// that has just finished is not handed out twice.
func (d *Dispatcher) tryClaim(ctx context.Context, driverID string) (*domain.Driver, error) {
	key := "driver:" + driverID
	if !d.claims.acquire(key) {
		return nil, errDriverClaimed
	}

	driver, err := d.drivers.GetDriver(ctx, driverID)
	if err != nil {
		d.claims.release(key)
		return nil, err
	}
	if !driver.IsAvailable() {
		d.claims.release(key)
		return nil, fmt.Errorf("driver %q is %s: %w", driverID, driver.Status, domain.ErrDriverUnavailable)
	}
	return driver, nil
}

func removeDriver(drivers []*domain.Driver, id string) []*domain.Driver {
	out := drivers[:0:0]
	for _, d := range drivers {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

// Recommend derives operator hints from a computed route.
func Recommend(route *domain.Route, deferred []domain.Stop) []Recommendation {
	recs := []Recommendation{}

	if len(route.Stops) > 0 && route.EfficiencyScore < lowEfficiencyThreshold {
		recs = append(recs, Recommendation{
			Type:    "efficiency",
			Message: fmt.Sprintf("route efficiency is %.0f%%", route.EfficiencyScore),
			Action:  "consider splitting the stops across more drivers",
		})
	}

	if route.TotalDurationMinutes > longRouteMinutes {
		recs = append(recs, Recommendation{
			Type:    "duration",
			Message: fmt.Sprintf("route takes %d minutes", route.TotalDurationMinutes),
			Action:  "assign a faster vehicle or reduce the number of stops",
		})
	}

	if len(deferred) > 0 {
		ids := make([]string, 0, len(deferred))
		for _, s := range deferred {
			ids = append(ids, s.ID)
		}
		recs = append(recs, Recommendation{
			Type:    "capacity",
			Message: fmt.Sprintf("%d stops did not fit the vehicle: %s", len(deferred), strings.Join(ids, ", ")),
			Action:  "dispatch the remaining stops to another driver",
		})
	}

	for _, rs := range route.Stops {
		deadline, ok := rs.Stop.Deadline()
		if rs.Stop.Priority == domain.PriorityUrgent && ok && rs.ArriveAt.After(deadline) {
			recs = append(recs, Recommendation{
				Type:    "late_urgent",
				Message: fmt.Sprintf("urgent stop %s arrives %s after its window", rs.Stop.ID, rs.ArriveAt.Sub(deadline).Round(time.Minute)),
				Action:  "notify the customer or reassign the stop",
			})
		}
	}

	return recs
}

// claimSet is a set of keys held by in-flight dispatch calls.
type claimSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{held: make(map[string]struct{})}
}

// acquire takes all keys or none.
func (c *claimSet) acquire(keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		if _, ok := c.held[k]; ok {
			return false
		}
	}
	for _, k := range keys {
		c.held[k] = struct{}{}
	}
	return true
}

func (c *claimSet) release(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.held, k)
	}
}

func (c *claimSet) isHeld(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.held[key]
	return ok
}
