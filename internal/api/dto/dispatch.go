package dto

import (
	"food-dispatch-service/internal/domain"
	"time"
)

type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

func (c *Coordinates) ToDomain() *domain.Coordinates {
	if c == nil {
		return nil
	}
	return &domain.Coordinates{Lat: c.Lat, Lon: c.Lng}
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"max=200"`
	Phone string `json:"phone" validate:"max=40"`
}

type TimeWindow struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}

type StopRequest struct {
	ID       string       `json:"id" validate:"required"`
	OrderID  string       `json:"orderId"`
	Location *Coordinates `json:"location" validate:"required_without=Address"`
	Address  string       `json:"address"`
	Customer Customer     `json:"customer"`
	Priority string       `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Window   TimeWindow   `json:"timeWindow"`
	// Minutes spent at the stop.
	ServiceMinutes int     `json:"estimatedDuration" validate:"gte=0"`
	OrderValue     float64 `json:"orderValue" validate:"gte=0"`
}

type DispatchRequest struct {
	Stops    []StopRequest `json:"stops" validate:"required,min=1,dive"`
	Origin   *Coordinates  `json:"origin"`
	DriverID string        `json:"driverId"`
	Criteria string        `json:"criteria" validate:"max=64"`
	DepartAt *time.Time    `json:"departAt"`
}

// ToStops converts request stops. Priority stays raw so the dispatcher
// applies its own defaulting.
func (r *DispatchRequest) ToStops() []domain.Stop {
	stops := make([]domain.Stop, 0, len(r.Stops))
	for _, s := range r.Stops {
		stop := domain.Stop{
			ID:      s.ID,
			OrderID: s.OrderID,
			Address: s.Address,
			Customer: domain.Customer{
				ID:    s.Customer.ID,
				Name:  s.Customer.Name,
				Phone: s.Customer.Phone,
			},
			Priority:       domain.Priority(s.Priority),
			Window:         domain.TimeWindow{Earliest: s.Window.Earliest, Latest: s.Window.Latest},
			ServiceMinutes: s.ServiceMinutes,
			OrderValue:     s.OrderValue,
		}
		if s.Location != nil {
			stop.Location = *s.Location.ToDomain()
		}
		stops = append(stops, stop)
	}
	return stops
}

type RouteStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active completed cancelled"`
}
