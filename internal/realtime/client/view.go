package client

import (
	"encoding/json"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/realtime"
	"maps"
	"slices"
	"sync"
)

// Bounds for the append-only lists kept in the view.
const (
	maxNotifications = 50
	maxNewOrders     = 100
	maxErrors        = 20
)

// ViewState folds hub events into the latest known picture of the platform.
type ViewState struct {
	mu   sync.RWMutex
	snap Snapshot
}

type Snapshot struct {
	Orders        map[string]domain.OrderStatusEvent
	Drivers       map[string]domain.DriverLocation
	Inventory     map[string]realtime.InventoryChange
	Kitchen       *domain.KitchenSnapshot
	Dashboard     *domain.DashboardSnapshot
	NewOrders     []realtime.NewOrder
	Notifications []realtime.Notification
	Errors        []realtime.ErrorMessage
	Rooms         []string
}

func NewViewState() *ViewState {
	return &ViewState{snap: Snapshot{
		Orders:    make(map[string]domain.OrderStatusEvent),
		Drivers:   make(map[string]domain.DriverLocation),
		Inventory: make(map[string]realtime.InventoryChange),
	}}
}

// Apply folds one inbound event. Unknown types are ignored.
func (v *ViewState) Apply(env realtime.Envelope) error {
	switch env.Type {
	case realtime.TypeOrderStatusChanged:
		var ev domain.OrderStatusEvent
		if err := unmarshal(env, &ev); err != nil {
			return err
		}
		v.update(func(s *Snapshot) {
			// Events can reach us through several rooms; keep the newest.
			if prev, ok := s.Orders[ev.OrderID]; ok && prev.Timestamp.After(ev.Timestamp) {
				return
			}
			s.Orders[ev.OrderID] = ev
		})

	case realtime.TypeDriverLocation:
		var loc domain.DriverLocation
		if err := unmarshal(env, &loc); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.Drivers[loc.DriverID] = loc })

	case realtime.TypeInventoryChanged:
		var inv realtime.InventoryChange
		if err := unmarshal(env, &inv); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.Inventory[inv.ProductID] = inv })

	case realtime.TypeKitchenQueue:
		var k domain.KitchenSnapshot
		if err := unmarshal(env, &k); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.Kitchen = &k })

	case realtime.TypeDashboardStats:
		var d domain.DashboardSnapshot
		if err := unmarshal(env, &d); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.Dashboard = &d })

	case realtime.TypeNewOrder:
		var o realtime.NewOrder
		if err := unmarshal(env, &o); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.NewOrders = appendBounded(s.NewOrders, o, maxNewOrders) })

	case realtime.TypeNotification:
		var n realtime.Notification
		if err := unmarshal(env, &n); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.Notifications = appendBounded(s.Notifications, n, maxNotifications) })

	case realtime.TypeError:
		var e realtime.ErrorMessage
		if err := unmarshal(env, &e); err != nil {
			return err
		}
		v.update(func(s *Snapshot) { s.Errors = appendBounded(s.Errors, e, maxErrors) })

	case realtime.TypeRoomJoined, realtime.TypeRoomLeft:
		var ack realtime.RoomAck
		if err := unmarshal(env, &ack); err != nil {
			return err
		}
		joined := env.Type == realtime.TypeRoomJoined
		v.update(func(s *Snapshot) {
			i, found := slices.BinarySearch(s.Rooms, ack.Room)
			switch {
			case joined && !found:
				s.Rooms = slices.Insert(s.Rooms, i, ack.Room)
			case !joined && found:
				s.Rooms = slices.Delete(s.Rooms, i, i+1)
			}
		})

	default:
		return fmt.Errorf("unhandled event type %q", env.Type)
	}
	return nil
}

// Snapshot returns a deep enough copy for the caller to read without locking.
func (v *ViewState) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := v.snap
	s.Orders = maps.Clone(v.snap.Orders)
	s.Drivers = maps.Clone(v.snap.Drivers)
	s.Inventory = maps.Clone(v.snap.Inventory)
	s.NewOrders = slices.Clone(v.snap.NewOrders)
	s.Notifications = slices.Clone(v.snap.Notifications)
	s.Errors = slices.Clone(v.snap.Errors)
	s.Rooms = slices.Clone(v.snap.Rooms)
	if v.snap.Kitchen != nil {
		k := *v.snap.Kitchen
		s.Kitchen = &k
	}
	if v.snap.Dashboard != nil {
		d := *v.snap.Dashboard
		s.Dashboard = &d
	}
	return s
}

func (v *ViewState) update(fn func(*Snapshot)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(&v.snap)
}

func unmarshal(env realtime.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return nil
}

func appendBounded[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	if len(list) > limit {
		list = slices.Delete(list, 0, len(list)-limit)
	}
	return list
}
