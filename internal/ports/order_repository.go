package ports

import (
	"context"
	"food-dispatch-service/internal/domain"
	"time"
)

// Port: the order data-access layer as seen by the status state machine.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*domain.OrderState, error)
	// Append the event and move the order's current status in one unit of work.
	AppendStatusEvent(ctx context.Context, event domain.OrderStatusEvent) error
	// Return the order's tracking events oldest first.
	ListStatusEvents(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error)
}

// Port: registration of orders placed by the ordering system.
type OrderWriter interface {
	CreateOrder(ctx context.Context, order domain.OrderState) error
}

// Port: aggregate statistics computed from persisted state at request time.
type StatsProvider interface {
	KitchenSnapshot(ctx context.Context, now time.Time) (*domain.KitchenSnapshot, error)
	DashboardSnapshot(ctx context.Context, now time.Time) (*domain.DashboardSnapshot, error)
}
