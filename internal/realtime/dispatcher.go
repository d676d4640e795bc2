package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/ports"
	"food-dispatch-service/internal/services"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result of handling one inbound event. The hub applies membership changes
// before delivering Out, so a join is visible to the messages that follow it.
type Result struct {
	Join  []string
	Leave []string
	Out   []Outbound
	// Set when the sender identified itself as a driver.
	DriverID string
	// When non-nil, kitchen and dashboard figures must be re-broadcast once
	// this channel reports the persistence outcome.
	RefreshAfter <-chan error
}

type DispatcherDeps struct {
	Tracker   *services.OrderTracker
	Locations ports.DriverLocationStore
	Stats     ports.StatsProvider
	// Optional; receives a copy of every location update.
	Drivers ports.DriverRepository
	Log     *zap.Logger
}

// Dispatcher maps inbound events to state changes and outbound messages.
// It holds no connection state and is safe for concurrent use.
type Dispatcher struct {
	tracker   *services.OrderTracker
	locations ports.DriverLocationStore
	stats     ports.StatsProvider
	drivers   ports.DriverRepository
	log       *zap.Logger
	now       func() time.Time
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		tracker:   deps.Tracker,
		locations: deps.Locations,
		stats:     deps.Stats,
		drivers:   deps.Drivers,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one event from connection connID.
func (d *Dispatcher) Handle(ctx context.Context, connID string, env Envelope) Result {
	res, err := d.handle(ctx, connID, env)
	if err != nil {
		d.log.Warn("inbound event rejected",
			zap.String("conn_id", connID),
			zap.String("type", env.Type),
			zap.Error(err),
		)
		return Result{Out: []Outbound{errorReply(connID, env.Type, err)}}
	}
	return res
}

func (d *Dispatcher) handle(ctx context.Context, connID string, env Envelope) (Result, error) {
	switch env.Type {
	case TypeJoinRoom, TypeLeaveRoom:
		var req RoomRequest
		if err := decode(env.Data, &req); err != nil {
			return Result{}, err
		}
		room, err := RoomID(req.Kind, req.ID)
		if err != nil {
			return Result{}, err
		}
		if env.Type == TypeJoinRoom {
			return Result{
				Join: []string{room},
				Out:  []Outbound{{ConnID: connID, Type: TypeRoomJoined, Data: RoomAck{Room: room}}},
			}, nil
		}
		return Result{
			Leave: []string{room},
			Out:   []Outbound{{ConnID: connID, Type: TypeRoomLeft, Data: RoomAck{Room: room}}},
		}, nil

	case TypeUpdateOrderStatus:
		var upd OrderStatusUpdate
		if err := decode(env.Data, &upd); err != nil {
			return Result{}, err
		}
		return d.ApplyStatus(ctx, upd)

	case TypeMarkOrderReady:
		var req MarkOrderReady
		if err := decode(env.Data, &req); err != nil {
			return Result{}, err
		}
		return d.ApplyStatus(ctx, OrderStatusUpdate{
			OrderID: req.OrderID,
			Status:  domain.OrderReadyForDelivery,
			ETA:     req.ETA,
		})

	case TypeUpdateDriverLocation:
		var upd DriverLocationUpdate
		if err := decode(env.Data, &upd); err != nil {
			return Result{}, err
		}
		return d.updateLocation(ctx, upd)

	case TypeRequestKitchenSnapshot:
		snap, err := d.stats.KitchenSnapshot(ctx, d.now())
		if err != nil {
			return Result{}, fmt.Errorf("kitchen snapshot: %w", err)
		}
		return Result{Out: []Outbound{{ConnID: connID, Type: TypeKitchenQueue, Data: snap}}}, nil

	case TypeRequestDashboardSnapshot:
		snap, err := d.stats.DashboardSnapshot(ctx, d.now())
		if err != nil {
			return Result{}, fmt.Errorf("dashboard snapshot: %w", err)
		}
		return Result{Out: []Outbound{{ConnID: connID, Type: TypeDashboardStats, Data: snap}}}, nil
	}

	return Result{}, fmt.Errorf("unknown event type %q: %w", env.Type, domain.ErrInvalidInput)
}

// ApplyStatus runs an order status change through the tracker and returns
// the fan-out for the resulting event.
func (d *Dispatcher) ApplyStatus(ctx context.Context, upd OrderStatusUpdate) (Result, error) {
	tr, err := d.tracker.Transition(ctx, services.TransitionRequest{
		OrderID:        upd.OrderID,
		Status:         upd.Status,
		DriverID:       upd.DriverID,
		DriverLocation: upd.DriverLocation,
		ETA:            upd.ETA,
		Message:        upd.Message,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Out: StatusBroadcasts(tr.Event)}
	if tr.RefreshStats {
		res.RefreshAfter = tr.Persisted
	}
	return res, nil
}

// StatusBroadcasts addresses an order status event to every interested room.
func StatusBroadcasts(ev domain.OrderStatusEvent) []Outbound {
	rooms := []string{OrderRoom(ev.OrderID)}
	if ev.CustomerID != "" {
		rooms = append(rooms, CustomerRoom(ev.CustomerID))
	}
	rooms = append(rooms, string(RoomAdmin), string(RoomDashboard))

	switch ev.Status {
	case domain.OrderConfirmed, domain.OrderPreparing, domain.OrderCancelled:
		rooms = append(rooms, string(RoomKitchen))
	case domain.OrderReadyForDelivery:
		rooms = append(rooms, string(RoomKitchen), string(RoomDrivers))
	}

	return []Outbound{{Rooms: rooms, Type: TypeOrderStatusChanged, Data: ev}}
}

// StatsBroadcasts recomputes kitchen and dashboard figures for their rooms.
func (d *Dispatcher) StatsBroadcasts(ctx context.Context) ([]Outbound, error) {
	now := d.now()

	kitchen, err := d.stats.KitchenSnapshot(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("kitchen snapshot: %w", err)
	}
	dashboard, err := d.stats.DashboardSnapshot(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("dashboard snapshot: %w", err)
	}

	return []Outbound{
		{Rooms: []string{string(RoomKitchen), string(RoomAdmin)}, Type: TypeKitchenQueue, Data: kitchen},
		{Rooms: []string{string(RoomDashboard), string(RoomAdmin)}, Type: TypeDashboardStats, Data: dashboard},
	}, nil
}

func (d *Dispatcher) updateLocation(ctx context.Context, upd DriverLocationUpdate) (Result, error) {
	upd.DriverID = strings.TrimSpace(upd.DriverID)
	if upd.DriverID == "" {
		return Result{}, fmt.Errorf("location update without driver id: %w", domain.ErrInvalidInput)
	}
	if err := upd.Location.Validate(); err != nil {
		return Result{}, fmt.Errorf("location update for %s: %w", upd.DriverID, err)
	}

	loc := domain.DriverLocation{
		DriverID:  upd.DriverID,
		OrderID:   upd.OrderID,
		Location:  upd.Location,
		Speed:     upd.Speed,
		Heading:   upd.Heading,
		Accuracy:  upd.Accuracy,
		UpdatedAt: d.now(),
	}

	if err := d.locations.Put(ctx, loc); err != nil {
		return Result{}, fmt.Errorf("store location for %s: %w", upd.DriverID, err)
	}

	if d.drivers != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.drivers.UpdateDriverLocation(ctx, loc); err != nil {
				d.log.Debug("persist driver location failed", zap.String("driver_id", loc.DriverID), zap.Error(err))
			}
		}()
	}

	rooms := []string{string(RoomDrivers), string(RoomAdmin)}
	if loc.OrderID != "" {
		rooms = append(rooms, OrderRoom(loc.OrderID))
	}

	return Result{
		DriverID: loc.DriverID,
		Out:      []Outbound{{Rooms: rooms, Type: TypeDriverLocation, Data: loc}},
	}, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing event data: %w", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode event data: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

func errorReply(connID, ref string, err error) Outbound {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrIllegalTransition):
		code = "illegal_transition"
	case errors.Is(err, domain.ErrOrderNotFound):
		code = "not_found"
	case domain.IsValidation(err):
		code = "bad_request"
	}

	return Outbound{
		ConnID: connID,
		Type:   TypeError,
		Data:   ErrorMessage{Code: code, Message: err.Error(), Ref: ref},
	}
}
