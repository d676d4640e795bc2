package ports

import (
	"context"
	"food-dispatch-service/internal/domain"
)

// Contract for resolving street addresses to coordinates through an external
// mapping service.
type Geocoder interface {
	// Return coordinates for each resolvable address, keyed by the normalized address.
	Geocode(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
}
