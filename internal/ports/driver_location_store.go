package ports

import (
	"context"
	"food-dispatch-service/internal/domain"
	"time"
)

// Port: last-known location of currently connected drivers.
//
// The in-memory implementation is owned by a single hub process. Running several
// hub processes requires a shared store with atomic per-key updates.
type DriverLocationStore interface {
	Put(ctx context.Context, loc domain.DriverLocation) error
	Get(ctx context.Context, driverID string) (*domain.DriverLocation, bool, error)
	// Remove the entry unless it was updated after seenUntil; report whether it was removed.
	Remove(ctx context.Context, driverID string, seenUntil time.Time) (bool, error)
	List(ctx context.Context) ([]domain.DriverLocation, error)
	// Remove entries whose last update is older than cutoff; return removed ids.
	PruneBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
