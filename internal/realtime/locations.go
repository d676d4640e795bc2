package realtime

import (
	"context"
	"food-dispatch-service/internal/domain"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryLocations is the default single-process active-driver map.
// Only the hub and its dispatcher write to it.
type MemoryLocations struct {
	mu   sync.RWMutex
	byID map[string]domain.DriverLocation
}

func NewMemoryLocations() *MemoryLocations {
	return &MemoryLocations{byID: make(map[string]domain.DriverLocation)}
}

func (m *MemoryLocations) Put(ctx context.Context, loc domain.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[loc.DriverID] = loc
	return nil
}

func (m *MemoryLocations) Get(ctx context.Context, driverID string) (*domain.DriverLocation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loc, ok := m.byID[driverID]
	if !ok {
		return nil, false, nil
	}
	return &loc, true, nil
}

func (m *MemoryLocations) Remove(ctx context.Context, driverID string, seenUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, ok := m.byID[driverID]
	if !ok || loc.UpdatedAt.After(seenUntil) {
		return false, nil
	}
	delete(m.byID, driverID)
	return true, nil
}

func (m *MemoryLocations) List(ctx context.Context) ([]domain.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.DriverLocation, 0, len(m.byID))
	for _, loc := range m.byID {
		out = append(out, loc)
	}
	slices.SortFunc(out, func(a, b domain.DriverLocation) int { return strings.Compare(a.DriverID, b.DriverID) })
	return out, nil
}

func (m *MemoryLocations) PruneBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, loc := range m.byID {
		if loc.UpdatedAt.Before(cutoff) {
			delete(m.byID, id)
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	return removed, nil
}
