package realtime

import (
	"encoding/json"
	"food-dispatch-service/internal/domain"
	"time"
)

// Wire envelope shared by both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client -> hub.
const (
	TypeJoinRoom                 = "join_room"
	TypeLeaveRoom                = "leave_room"
	TypeUpdateOrderStatus        = "update_order_status"
	TypeUpdateDriverLocation     = "update_driver_location"
	TypeMarkOrderReady           = "mark_order_ready"
	TypeRequestKitchenSnapshot   = "request_kitchen_snapshot"
	TypeRequestDashboardSnapshot = "request_dashboard_snapshot"
)

// Hub -> client.
const (
	TypeOrderStatusChanged = "order_status_changed"
	TypeNewOrder           = "new_order"
	TypeKitchenQueue       = "kitchen_queue"
	TypeDriverLocation     = "driver_location"
	TypeInventoryChanged   = "inventory_changed"
	TypeDashboardStats     = "dashboard_stats"
	TypeNotification       = "notification"
	TypeRoomJoined         = "room_joined"
	TypeRoomLeft           = "room_left"
	TypeError              = "error"
)

type RoomRequest struct {
	Kind RoomKind `json:"kind"`
	ID   string   `json:"id,omitempty"`
}

type RoomAck struct {
	Room string `json:"room"`
}

type OrderStatusUpdate struct {
	OrderID        string              `json:"orderId"`
	Status         domain.OrderStatus  `json:"status"`
	DriverID       string              `json:"driverId,omitempty"`
	DriverLocation *domain.Coordinates `json:"location,omitempty"`
	ETA            *time.Time          `json:"estimatedTime,omitempty"`
	Message        string              `json:"message,omitempty"`
}

type DriverLocationUpdate struct {
	DriverID string             `json:"driverId"`
	OrderID  string             `json:"orderId,omitempty"`
	Location domain.Coordinates `json:"location"`
	Speed    float64            `json:"speed,omitempty"`
	Heading  float64            `json:"heading,omitempty"`
	Accuracy float64            `json:"accuracy,omitempty"`
}

type MarkOrderReady struct {
	OrderID string     `json:"orderId"`
	ETA     *time.Time `json:"estimatedTime,omitempty"`
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Announced by the ordering system when a customer places an order.
type NewOrder struct {
	OrderID              string          `json:"orderId"`
	CustomerID           string          `json:"customerId"`
	Customer             domain.Customer `json:"customer"`
	Items                []OrderItem     `json:"items"`
	Total                float64         `json:"total"`
	Priority             domain.Priority `json:"priority"`
	EstimatedPrepMinutes int             `json:"estimatedPrepTime,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
}

type StockLevel string

const (
	StockOK  StockLevel = "ok"
	StockLow StockLevel = "low"
	StockOut StockLevel = "out"
)

type InventoryChange struct {
	ProductID string     `json:"productId"`
	Name      string     `json:"name"`
	Stock     int        `json:"stock"`
	Threshold int        `json:"threshold"`
	Level     StockLevel `json:"level"`
}

// Level classifies stock against the reorder threshold.
func Level(stock, threshold int) StockLevel {
	switch {
	case stock <= 0:
		return StockOut
	case stock <= threshold:
		return StockLow
	}
	return StockOK
}

type Notification struct {
	CustomerID string    `json:"-"`
	Kind       string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	OrderID    string    `json:"orderId,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Inbound type that caused the error, if known.
	Ref string `json:"ref,omitempty"`
}

// Outbound is a message addressed to rooms or to a single connection.
type Outbound struct {
	Rooms []string
	// ConnID targets one connection instead of rooms.
	ConnID string
	Type   string
	Data   any
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}
