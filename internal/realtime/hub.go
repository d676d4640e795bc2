// Package realtime distributes order, kitchen, driver and dashboard events to
// websocket subscribers grouped into rooms.
//
// A Hub owns room membership in a single loop goroutine; every change to it
// arrives as a command on a channel. Inbound events are handled on the
// sending connection's own read goroutine, which keeps per-connection order
// without letting one slow handler stall other connections.
package realtime

import (
	"context"
	"errors"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/ports"
	"food-dispatch-service/internal/services"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	DefaultStaleDriverTimeout = 60 * time.Second

	defaultSendBuffer     = 256
	defaultCommandBuffer  = 1024
	defaultPingInterval   = 30 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 8192
)

var (
	ErrHubNotRunning = errors.New("realtime hub is not running")
	ErrHubStarted    = errors.New("realtime hub already started")
)

type HubConfig struct {
	// Per-connection outbound buffer. A connection whose buffer fills is dropped.
	SendBuffer    int
	CommandBuffer int
	// Drivers silent for longer than this are removed from the active map.
	StaleDriverTimeout time.Duration
	SweepInterval      time.Duration
	PingInterval       time.Duration
	PongWait           time.Duration
	WriteWait          time.Duration
	MaxMessageSize     int64
	// Empty allows every origin.
	AllowedOrigins []string
}

func (c HubConfig) withDefaults() HubConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = defaultCommandBuffer
	}
	if c.StaleDriverTimeout <= 0 {
		c.StaleDriverTimeout = DefaultStaleDriverTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.StaleDriverTimeout / 4
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

type HubDeps struct {
	Tracker *services.OrderTracker
	Stats   ports.StatsProvider
	// Defaults to an in-memory map owned by the hub.
	Locations ports.DriverLocationStore
	Drivers   ports.DriverRepository
	Log       *zap.Logger
}

type Hub struct {
	dispatcher *Dispatcher
	locations  ports.DriverLocationStore
	log        *zap.Logger
	cfg        HubConfig
	upgrader   websocket.Upgrader

	cmds    chan command
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started *atomic.Bool
	running *atomic.Bool

	// Owned by the loop goroutine.
	conns    map[string]*Conn
	rooms    map[string]map[string]*Conn
	memberOf map[string]map[string]struct{}
}

func NewHub(deps HubDeps, cfg HubConfig) *Hub {
	cfg = cfg.withDefaults()

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	locations := deps.Locations
	if locations == nil {
		locations = NewMemoryLocations()
	}

	h := &Hub{
		dispatcher: NewDispatcher(DispatcherDeps{
			Tracker:   deps.Tracker,
			Locations: locations,
			Stats:     deps.Stats,
			Drivers:   deps.Drivers,
			Log:       log,
		}),
		locations: locations,
		log:       log,
		cfg:       cfg,
		cmds:      make(chan command, cfg.CommandBuffer),
		done:      make(chan struct{}),
		started:   atomic.NewBool(false),
		running:   atomic.NewBool(false),
		conns:     make(map[string]*Conn),
		rooms:     make(map[string]map[string]*Conn),
		memberOf:  make(map[string]map[string]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// Start launches the hub loop. The hub stops when ctx is cancelled or Stop is called.
// A stopped hub cannot be started again.
func (h *Hub) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHubStarted
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running.Store(true)
	go h.run(h.ctx)

	h.log.Info("realtime hub started",
		zap.Duration("stale_driver_timeout", h.cfg.StaleDriverTimeout),
	)
	return nil
}

// Stop closes every connection and waits for the loop to exit.
func (h *Hub) Stop() {
	if !h.started.Load() {
		return
	}
	h.cancel()
	<-h.done
}

// Done is closed once the hub loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			h.running.Store(false)
			for _, c := range h.conns {
				h.detach(c)
			}
			h.log.Info("realtime hub stopped")
			return

		case cmd := <-h.cmds:
			cmd.apply(h)

		case <-sweep.C:
			go h.sweepStale(ctx)
		}
	}
}

// submit hands a command to the loop. It returns false once the hub has stopped.
func (h *Hub) submit(cmd command) bool {
	select {
	case h.cmds <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
// Optional query parameters role and user_id label the connection in logs.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.running.Load() {
		http.Error(w, ErrHubNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Conn{
		ID:       uuid.NewString(),
		Role:     r.URL.Query().Get("role"),
		UserID:   r.URL.Query().Get("user_id"),
		ws:       ws,
		send:     make(chan []byte, h.cfg.SendBuffer),
		hub:      h,
		driverID: atomic.NewString(""),
	}

	// The command can still land in the buffer while the loop exits, so wait
	// for the loop to take it.
	registered := make(chan struct{})
	if !h.submit(registerCmd{conn: c, registered: registered}) {
		_ = ws.Close()
		return
	}
	select {
	case <-registered:
	case <-h.done:
		_ = ws.Close()
		return
	}

	go c.writePump()
	go c.readPump(h.ctx)
}

// ApplyOrderStatus changes an order's status outside a websocket session and
// broadcasts the resulting event.
func (h *Hub) ApplyOrderStatus(ctx context.Context, upd OrderStatusUpdate) (*domain.OrderStatusEvent, error) {
	res, err := h.dispatcher.ApplyStatus(ctx, upd)
	if err != nil {
		return nil, err
	}
	h.apply(nil, res)

	ev, _ := res.Out[0].Data.(domain.OrderStatusEvent)
	return &ev, nil
}

// PublishOrderEvent broadcasts an already-applied status event.
func (h *Hub) PublishOrderEvent(ev domain.OrderStatusEvent) {
	h.submit(deliverCmd{out: StatusBroadcasts(ev)})
}

func (h *Hub) NotifyNewOrder(o NewOrder) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	rooms := []string{string(RoomKitchen), string(RoomAdmin), string(RoomDashboard)}
	if o.CustomerID != "" {
		rooms = append(rooms, CustomerRoom(o.CustomerID))
	}
	h.submit(deliverCmd{out: []Outbound{{Rooms: rooms, Type: TypeNewOrder, Data: o}}})
}

func (h *Hub) NotifyInventory(c InventoryChange) {
	if c.Level == "" {
		c.Level = Level(c.Stock, c.Threshold)
	}
	rooms := []string{string(RoomAdmin), string(RoomKitchen)}
	h.submit(deliverCmd{out: []Outbound{{Rooms: rooms, Type: TypeInventoryChanged, Data: c}}})
}

func (h *Hub) NotifyCustomer(n Notification) error {
	if n.CustomerID == "" {
		return errors.New("notify customer: missing customer id")
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	h.submit(deliverCmd{out: []Outbound{{Rooms: []string{CustomerRoom(n.CustomerID)}, Type: TypeNotification, Data: n}}})
	return nil
}

// BroadcastStats pushes fresh kitchen and dashboard snapshots.
func (h *Hub) BroadcastStats(ctx context.Context) error {
	out, err := h.dispatcher.StatsBroadcasts(ctx)
	if err != nil {
		return err
	}
	h.submit(deliverCmd{out: out})
	return nil
}

// ActiveDrivers returns the last known location of every connected driver.
func (h *Hub) ActiveDrivers(ctx context.Context) ([]domain.DriverLocation, error) {
	return h.locations.List(ctx)
}

// RoomSize reports the number of connections in room, or -1 if the hub has stopped.
func (h *Hub) RoomSize(room string) int {
	n := -1
	h.query(func(h *Hub) { n = len(h.rooms[room]) })
	return n
}

func (h *Hub) ConnectionCount() int {
	n := -1
	h.query(func(h *Hub) { n = len(h.conns) })
	return n
}

func (h *Hub) query(fn func(*Hub)) {
	done := make(chan struct{})
	if !h.submit(queryCmd{fn: fn, done: done}) {
		return
	}
	select {
	case <-done:
	case <-h.done:
	}
}

// apply submits a handled result and schedules the stats refresh it asks for.
// conn is nil for results that did not come from a websocket session.
func (h *Hub) apply(conn *Conn, res Result) {
	if !h.submit(resultCmd{conn: conn, res: res}) {
		return
	}

	if res.RefreshAfter == nil {
		return
	}

	ctx := h.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		select {
		case <-res.RefreshAfter:
		case <-ctx.Done():
			return
		}

		out, err := h.dispatcher.StatsBroadcasts(ctx)
		if err != nil {
			h.log.Warn("refresh stats failed", zap.Error(err))
			return
		}
		h.submit(deliverCmd{out: out})
	}()
}

func (h *Hub) sweepStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-h.cfg.StaleDriverTimeout)

	removed, err := h.locations.PruneBefore(ctx, cutoff)
	if err != nil {
		h.log.Warn("prune stale drivers failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		h.log.Info("stale drivers removed", zap.Strings("driver_ids", removed))
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// Loop-side helpers below must only run on the loop goroutine.

func (h *Hub) join(c *Conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c

	joined, ok := h.memberOf[c.ID]
	if !ok {
		joined = make(map[string]struct{})
		h.memberOf[c.ID] = joined
	}
	joined[room] = struct{}{}
}

func (h *Hub) leave(c *Conn, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.memberOf[c.ID], room)
}

// detach removes a connection from every room and closes its send channel.
func (h *Hub) detach(c *Conn) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	for room := range h.memberOf[c.ID] {
		h.leave(c, room)
	}
	delete(h.memberOf, c.ID)
	delete(h.conns, c.ID)
	close(c.send)
}

func (h *Hub) deliver(out Outbound) {
	msg, err := encode(out.Type, out.Data)
	if err != nil {
		h.log.Error("encode outbound message failed", zap.String("type", out.Type), zap.Error(err))
		return
	}

	if out.ConnID != "" {
		if c, ok := h.conns[out.ConnID]; ok {
			h.sendTo(c, msg)
		}
		return
	}

	seen := make(map[string]struct{})
	for _, room := range out.Rooms {
		for id, c := range h.rooms[room] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			h.sendTo(c, msg)
		}
	}
}

func (h *Hub) sendTo(c *Conn, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("dropping slow connection", zap.String("conn_id", c.ID))
		h.detach(c)
	}
}

type command interface {
	apply(h *Hub)
}

type registerCmd struct {
	conn       *Conn
	registered chan struct{}
}

func (c registerCmd) apply(h *Hub) {
	h.conns[c.conn.ID] = c.conn
	close(c.registered)
	h.log.Debug("connection registered",
		zap.String("conn_id", c.conn.ID),
		zap.String("role", c.conn.Role),
		zap.String("user_id", c.conn.UserID),
	)
}

type unregisterCmd struct{ conn *Conn }

func (c unregisterCmd) apply(h *Hub) {
	h.detach(c.conn)

	driverID := c.conn.driverID.Load()
	if driverID == "" {
		return
	}
	// A reconnect may report a newer location before this runs; that entry stays.
	disconnectedAt := time.Now().UTC()
	go func() {
		if _, err := h.locations.Remove(context.Background(), driverID, disconnectedAt); err != nil {
			h.log.Warn("remove disconnected driver failed", zap.String("driver_id", driverID), zap.Error(err))
		}
	}()
}

type resultCmd struct {
	conn *Conn
	res  Result
}

func (c resultCmd) apply(h *Hub) {
	if c.conn != nil {
		if _, ok := h.conns[c.conn.ID]; ok {
			for _, room := range c.res.Join {
				h.join(c.conn, room)
			}
			for _, room := range c.res.Leave {
				h.leave(c.conn, room)
			}
		}
	}
	for _, out := range c.res.Out {
		h.deliver(out)
	}
}

type deliverCmd struct{ out []Outbound }

func (c deliverCmd) apply(h *Hub) {
	for _, out := range c.out {
		h.deliver(out)
	}
}

type queryCmd struct {
	fn   func(*Hub)
	done chan struct{}
}

func (c queryCmd) apply(h *Hub) {
	c.fn(h)
	close(c.done)
}
