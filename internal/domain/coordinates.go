package domain

import "math"

// Immutable geographic coordinates (latitude, longitude in degrees).
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// IsZero reports whether the coordinate was never set.
func (c Coordinates) IsZero() bool { return c.Lat == 0 && c.Lon == 0 }

// Validate rejects non-finite or out-of-range coordinates.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return ErrInvalidCoordinates
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
