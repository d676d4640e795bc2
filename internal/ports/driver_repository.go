package ports

import (
	"context"
	"food-dispatch-service/internal/domain"
)

// Port: a boundary for reading drivers and recording shift/status changes.
type DriverRepository interface {
	// Retrieve all drivers ordered by id.
	ListDrivers(ctx context.Context) ([]*domain.Driver, error)
	GetDriver(ctx context.Context, driverID string) (*domain.Driver, error)
	UpdateDriverStatus(ctx context.Context, driverID string, status domain.DriverStatus) error
	UpdateDriverLocation(ctx context.Context, loc domain.DriverLocation) error
}
