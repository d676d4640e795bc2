package domain

import "time"

// Pull-based kitchen queue snapshot.
type KitchenSnapshot struct {
	ActiveOrders       int          `json:"activeOrders"`
	AveragePrepMinutes float64      `json:"averagePrepTime"`
	NextOrder          *QueuedOrder `json:"nextOrder,omitempty"`
	GeneratedAt        time.Time    `json:"generatedAt"`
}

type QueuedOrder struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Since   time.Time   `json:"since"`
	Total   float64     `json:"total"`
}

// Pull-based dashboard statistics for the current day.
type DashboardSnapshot struct {
	TodayOrders            int       `json:"todayOrders"`
	TodayRevenue           float64   `json:"todayRevenue"`
	ActiveOrders           int       `json:"activeOrders"`
	AverageDeliveryMinutes float64   `json:"averageDeliveryTime"`
	GeneratedAt            time.Time `json:"generatedAt"`
}
