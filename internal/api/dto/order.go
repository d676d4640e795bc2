package dto

import (
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/realtime"
	"time"
)

type OrderStatusRequest struct {
	Status   string       `json:"status" validate:"required"`
	DriverID string       `json:"driverId"`
	Location *Coordinates `json:"location"`
	ETA      *time.Time   `json:"estimatedTime"`
	Message  string       `json:"message" validate:"max=500"`
}

func (r *OrderStatusRequest) ToUpdate(orderID string) realtime.OrderStatusUpdate {
	return realtime.OrderStatusUpdate{
		OrderID:        orderID,
		Status:         domain.OrderStatus(r.Status),
		DriverID:       r.DriverID,
		DriverLocation: r.Location.ToDomain(),
		ETA:            r.ETA,
		Message:        r.Message,
	}
}

type OrderItem struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity" validate:"min=1"`
	Price     float64 `json:"price" validate:"gte=0"`
}

// Sent by the ordering system when a customer places an order.
type CreateOrderRequest struct {
	OrderID              string      `json:"orderId" validate:"required"`
	CustomerID           string      `json:"customerId"`
	Customer             Customer    `json:"customer"`
	Items                []OrderItem `json:"items" validate:"dive"`
	Total                float64     `json:"total" validate:"gte=0"`
	Priority             string      `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	EstimatedPrepMinutes int         `json:"estimatedPrepTime" validate:"gte=0"`
}

func (r *CreateOrderRequest) ToDomain(now time.Time) domain.OrderState {
	return domain.OrderState{
		OrderID:    r.OrderID,
		CustomerID: r.CustomerID,
		Status:     domain.OrderPending,
		Total:      r.Total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *CreateOrderRequest) ToAnnouncement(now time.Time) realtime.NewOrder {
	items := make([]realtime.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, realtime.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	priority, err := domain.ParsePriority(r.Priority)
	if err != nil {
		priority = domain.PriorityNormal
	}

	return realtime.NewOrder{
		OrderID:    r.OrderID,
		CustomerID: r.CustomerID,
		Customer: domain.Customer{
			ID:    r.CustomerID,
			Name:  r.Customer.Name,
			Phone: r.Customer.Phone,
		},
		Items:                items,
		Total:                r.Total,
		Priority:             priority,
		EstimatedPrepMinutes: r.EstimatedPrepMinutes,
		CreatedAt:            now,
	}
}

type InventoryRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Name      string `json:"name"`
	Stock     int    `json:"stock" validate:"gte=0"`
	Threshold int    `json:"threshold" validate:"gte=0"`
}

type NotificationRequest struct {
	CustomerID string `json:"customerId" validate:"required"`
	Type       string `json:"type" validate:"required,max=64"`
	Title      string `json:"title" validate:"required,max=200"`
	Message    string `json:"message" validate:"max=1000"`
	OrderID    string `json:"orderId"`
}
