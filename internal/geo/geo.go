// Package geo holds the distance and travel-time model used by dispatch.
//
// Distances are great-circle (haversine) on a spherical Earth, which is accurate
// enough at urban delivery ranges. Travel time uses a fixed speed per vehicle
// mode; there is no road network or live traffic.
package geo

import (
	"fmt"
	"math"

	"food-dispatch-service/internal/domain"
)

const (
	earthRadiusMeters = 6371000.0

	// DefaultTrafficFactor divides the base speed of every mode.
	DefaultTrafficFactor = 1.2
)

// Base speeds in km/h, bike < scooter < car.
var baseSpeedKmh = map[domain.VehicleMode]float64{
	domain.ModeBike:    15,
	domain.ModeScooter: 25,
	domain.ModeCar:     35,
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b domain.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Clamp guards against h drifting just above 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// TravelTime estimates whole minutes to cover distanceMeters in the given mode.
// A trafficFactor <= 0 selects DefaultTrafficFactor.
func TravelTime(distanceMeters float64, mode domain.VehicleMode, trafficFactor float64) (int, error) {
	if math.IsNaN(distanceMeters) || math.IsInf(distanceMeters, 0) || distanceMeters < 0 {
		return 0, fmt.Errorf("travel time: distance %v: %w", distanceMeters, domain.ErrInvalidInput)
	}
	if math.IsNaN(trafficFactor) || math.IsInf(trafficFactor, 0) {
		return 0, fmt.Errorf("travel time: traffic factor %v: %w", trafficFactor, domain.ErrInvalidInput)
	}

	speed, ok := baseSpeedKmh[mode]
	if !ok {
		return 0, fmt.Errorf("travel time: vehicle mode %q: %w", mode, domain.ErrInvalidInput)
	}

	if trafficFactor <= 0 {
		trafficFactor = DefaultTrafficFactor
	}

	effectiveKmh := speed / trafficFactor
	hours := (distanceMeters / 1000) / effectiveKmh

	return int(math.Round(hours * 60)), nil
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
