package realtime

import (
	"fmt"
	"food-dispatch-service/internal/domain"
	"strings"
)

type RoomKind string

const (
	RoomCustomer  RoomKind = "customer"
	RoomOrder     RoomKind = "order"
	RoomKitchen   RoomKind = "kitchen"
	RoomDrivers   RoomKind = "drivers"
	RoomAdmin     RoomKind = "admin"
	RoomDashboard RoomKind = "dashboard"
)

// Global rooms have a single instance; entity rooms are keyed by an id.
func (k RoomKind) Global() bool {
	switch k {
	case RoomKitchen, RoomDrivers, RoomAdmin, RoomDashboard:
		return true
	}
	return false
}

func (k RoomKind) Valid() bool {
	return k.Global() || k == RoomCustomer || k == RoomOrder
}

// RoomID derives the room name for kind and id. Any two callers naming the
// same entity get the same string. The id is ignored for global kinds.
func RoomID(kind RoomKind, id string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("room kind %q: %w", kind, domain.ErrInvalidInput)
	}
	if kind.Global() {
		return string(kind), nil
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("room %s requires an id: %w", kind, domain.ErrInvalidInput)
	}
	return string(kind) + ":" + id, nil
}

func OrderRoom(orderID string) string       { return string(RoomOrder) + ":" + orderID }
func CustomerRoom(customerID string) string { return string(RoomCustomer) + ":" + customerID }
