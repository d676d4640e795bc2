package domain

import (
	"fmt"
	"time"
)

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverBusy      DriverStatus = "busy"
	DriverOffline   DriverStatus = "offline"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case DriverAvailable, DriverBusy, DriverOffline:
		return true
	}
	return false
}

type VehicleMode string

const (
	ModeBike    VehicleMode = "bike"
	ModeScooter VehicleMode = "scooter"
	ModeCar     VehicleMode = "car"
)

type Vehicle struct {
	Mode           VehicleMode `json:"type"`
	Capacity       int         `json:"capacity"`
	FuelEfficiency float64     `json:"fuelEfficiency"`
}

// Rolling performance record used by driver selection.
// SuccessRate is a percentage (0-100), Rating is on a 0-5 scale.
type Performance struct {
	AvgDeliveryMinutes float64 `json:"averageDeliveryTime"`
	SuccessRate        float64 `json:"successRate"`
	Rating             float64 `json:"rating"`
	DeliveriesToday    int     `json:"totalDeliveriesToday"`
}

// Driver aggregate. Drivers are never deleted, only marked offline.
type Driver struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Phone             string       `json:"phone"`
	Status            DriverStatus `json:"status"`
	Location          Coordinates  `json:"location"`
	LocationUpdatedAt time.Time    `json:"lastUpdated"`
	Vehicle           Vehicle      `json:"vehicle"`
	Performance       Performance  `json:"performance"`
}

func (d *Driver) IsAvailable() bool { return d != nil && d.Status == DriverAvailable }

// CheckCapacity rejects drivers that cannot carry any stop.
func (d *Driver) CheckCapacity() error {
	if d == nil || d.Vehicle.Capacity <= 0 {
		id := ""
		if d != nil {
			id = d.ID
		}
		return fmt.Errorf("driver %q: %w", id, ErrInvalidCapacity)
	}
	return nil
}

// Last known position of a connected driver as tracked by the real-time layer.
type DriverLocation struct {
	DriverID  string      `json:"driverId"`
	OrderID   string      `json:"orderId,omitempty"`
	Location  Coordinates `json:"location"`
	Speed     float64     `json:"speed"`
	Heading   float64     `json:"heading"`
	Accuracy  float64     `json:"accuracy"`
	UpdatedAt time.Time   `json:"timestamp"`
}
