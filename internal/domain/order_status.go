package domain

import "time"

type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderConfirmed        OrderStatus = "confirmed"
	OrderPreparing        OrderStatus = "preparing"
	OrderReadyForDelivery OrderStatus = "ready_for_delivery"
	OrderOutForDelivery   OrderStatus = "out_for_delivery"
	OrderDelivered        OrderStatus = "delivered"
	OrderCancelled        OrderStatus = "cancelled"
)

// Fixed lifecycle graph. Delivered and cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:          {OrderConfirmed, OrderCancelled},
	OrderConfirmed:        {OrderPreparing, OrderCancelled},
	OrderPreparing:        {OrderReadyForDelivery},
	OrderReadyForDelivery: {OrderOutForDelivery},
	OrderOutForDelivery:   {OrderDelivered},
}

var orderStatusMessages = map[OrderStatus]string{
	OrderPending:          "Order received and awaiting confirmation",
	OrderConfirmed:        "Order confirmed by the restaurant",
	OrderPreparing:        "Your order is being prepared",
	OrderReadyForDelivery: "Order is ready and waiting for a driver",
	OrderOutForDelivery:   "Driver is on the way",
	OrderDelivered:        "Order delivered",
	OrderCancelled:        "Order cancelled",
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatusMessages[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Active orders are neither delivered nor cancelled.
func (s OrderStatus) Active() bool { return s.Valid() && !s.Terminal() }

// InKitchen reports whether the order currently occupies the kitchen queue.
func (s OrderStatus) InKitchen() bool {
	return s == OrderConfirmed || s == OrderPreparing
}

// Message returns the customer-facing text for a status.
func (s OrderStatus) Message() string { return orderStatusMessages[s] }

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Append-only tracking record. Each event is both a persistence row and a
// real-time broadcast payload.
type OrderStatusEvent struct {
	ID             string       `json:"id"`
	OrderID        string       `json:"orderId"`
	CustomerID     string       `json:"customerId,omitempty"`
	Status         OrderStatus  `json:"status"`
	Message        string       `json:"message"`
	Timestamp      time.Time    `json:"timestamp"`
	DriverID       string       `json:"driverId,omitempty"`
	DriverLocation *Coordinates `json:"location,omitempty"`
	ETA            *time.Time   `json:"estimatedTime,omitempty"`
}

// Current state of an order as known to the data-access layer.
type OrderState struct {
	OrderID    string
	CustomerID string
	Status     OrderStatus
	Total      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
