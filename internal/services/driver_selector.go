package services

import (
	"fmt"
	"food-dispatch-service/internal/domain"
	"math"
)

// Per-driver breakdown. Each component is on a 0-100 scale and Total is their mean.
type DriverScore struct {
	Driver      *domain.Driver
	CapacityFit float64
	Performance float64
	Workload    float64
	Total       float64
}

// ScoreDriver rates how well a driver suits a batch of stopCount stops.
func ScoreDriver(d *domain.Driver, stopCount int) DriverScore {
	capacityFit := 0.0
	if d.Vehicle.Capacity > 0 {
		capacityFit = math.Min(1, float64(d.Vehicle.Capacity)/float64(max(1, stopCount))) * 100
	}

	perf := (d.Performance.SuccessRate + d.Performance.Rating*20) / 2
	perf = math.Max(0, math.Min(100, perf))

	workload := math.Max(0, 100-float64(d.Performance.DeliveriesToday)*5)

	return DriverScore{
		Driver:      d,
		CapacityFit: capacityFit,
		Performance: perf,
		Workload:    workload,
		Total:       (capacityFit + perf + workload) / 3,
	}
}

// SelectDriver returns the highest-scoring available driver for stopCount stops.
// Equal scores prefer the vehicle whose capacity is closest to stopCount, then
// the earlier driver in the input order.
func SelectDriver(drivers []*domain.Driver, stopCount int) (*DriverScore, error) {
	var best *DriverScore

	for _, d := range drivers {
		if !d.IsAvailable() || d.Vehicle.Capacity <= 0 {
			continue
		}

		score := ScoreDriver(d, stopCount)
		if best == nil || score.Total > best.Total ||
			(score.Total == best.Total && capacityGap(d, stopCount) < capacityGap(best.Driver, stopCount)) {
			best = &score
		}
	}

	if best == nil {
		return nil, fmt.Errorf("select driver among %d: %w", len(drivers), domain.ErrNoDriversAvailable)
	}
	return best, nil
}

func capacityGap(d *domain.Driver, stopCount int) int {
	gap := d.Vehicle.Capacity - stopCount
	if gap < 0 {
		return -gap
	}
	return gap
}
