// Package client keeps one resilient websocket session to the realtime hub.
//
// Outbound events sent while disconnected are queued in memory and flushed in
// order on the next successful connection, after which remembered rooms are
// re-joined. The queue is not durable and is discarded by Close.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"food-dispatch-service/internal/realtime"
	"math/rand"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
)

var (
	ErrClosed  = errors.New("connection manager closed")
	ErrOffline = errors.New("realtime server unreachable")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// Reconnection attempts are exhausted; Connect must be called again.
	StateOffline
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Transport is the subset of *websocket.Conn the manager uses.
type Transport interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

type Dialer func(ctx context.Context, url string) (Transport, error)

// WebsocketDialer dials with gorilla/websocket.
func WebsocketDialer(header http.Header) Dialer {
	return func(ctx context.Context, url string) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type Config struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Called on every state change, from the goroutine that caused it, with no
	// manager lock held.
	OnStateChange func(State)
}

type queued struct {
	env      realtime.Envelope
	queuedAt time.Time
}

type Manager struct {
	cfg  Config
	dial Dialer
	log  *zap.Logger

	mu     sync.Mutex
	conn   Transport
	state  State
	queue  []queued
	rooms  map[string]realtime.RoomRequest
	closed *atomic.Bool
	// Cancels the reconnect loop started by Connect.
	cancel context.CancelFunc

	view *ViewState

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg Config, dial Dialer, log *zap.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if dial == nil {
		dial = WebsocketDialer(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		cfg:    cfg,
		dial:   dial,
		log:    log,
		state:  StateDisconnected,
		rooms:  make(map[string]realtime.RoomRequest),
		closed: atomic.NewBool(false),
		view:   NewViewState(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Connect dials until a session is established or MaxAttempts is exhausted.
// Later disconnects trigger the same bounded reconnection in the background.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	return m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if m.closed.Load() {
			return ErrClosed
		}
		m.setState(StateConnecting)

		t, err := m.dial(ctx, m.cfg.URL)
		if err == nil {
			if err = m.attach(t); err == nil {
				go m.readLoop(ctx, t)
				return nil
			}
		}
		lastErr = err

		m.log.Warn("realtime connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.MaxAttempts),
			zap.Error(err),
		)

		if attempt == m.cfg.MaxAttempts {
			break
		}
		if err := m.sleep(ctx, m.backoff(attempt)); err != nil {
			m.setState(StateDisconnected)
			return err
		}
	}

	m.setState(StateOffline)
	return fmt.Errorf("%w after %d attempts: %v", ErrOffline, m.cfg.MaxAttempts, lastErr)
}

// attach flushes the queue and re-joins rooms on a fresh transport, then
// publishes it. Sends block on the lock meanwhile, so queued events always
// precede new ones.
func (m *Manager) attach(t Transport) error {
	notify := func() {}
	defer func() { notify() }()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		_ = t.Close()
		return ErrClosed
	}

	pending := m.queue
	m.queue = nil

	for i, q := range pending {
		if err := t.WriteJSON(q.env); err != nil {
			m.log.Warn("flush interrupted, discarding queued events",
				zap.Int("sent", i),
				zap.Int("discarded", len(pending)-i),
				zap.Error(err),
			)
			_ = t.Close()
			return fmt.Errorf("flush queue: %w", err)
		}
	}

	for _, key := range sortedKeys(m.rooms) {
		env, err := envelope(realtime.TypeJoinRoom, m.rooms[key])
		if err != nil {
			return err
		}
		if err := t.WriteJSON(env); err != nil {
			_ = t.Close()
			return fmt.Errorf("rejoin %s: %w", key, err)
		}
	}

	// A second Connect replaces the session; its read loop exits on close.
	if m.conn != nil && m.conn != t {
		_ = m.conn.Close()
	}
	m.conn = t
	notify = m.setStateLocked(StateConnected)
	m.log.Info("realtime connected", zap.Int("flushed", len(pending)), zap.Int("rooms", len(m.rooms)))
	return nil
}

func (m *Manager) readLoop(ctx context.Context, t Transport) {
	for {
		var env realtime.Envelope
		if err := t.ReadJSON(&env); err != nil {
			current := m.detach(t, err)
			if !current || m.closed.Load() || ctx.Err() != nil {
				return
			}
			if err := m.connect(ctx); err != nil {
				m.log.Warn("realtime reconnect gave up", zap.Error(err))
			}
			return
		}

		if err := m.view.Apply(env); err != nil {
			m.log.Debug("ignored inbound event", zap.String("type", env.Type), zap.Error(err))
		}
	}
}

// detach drops t if it is still the live transport and reports whether it was.
func (m *Manager) detach(t Transport, cause error) bool {
	notify := func() {}
	defer func() { notify() }()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != t {
		return false
	}
	_ = t.Close()
	m.conn = nil
	if !m.closed.Load() {
		notify = m.setStateLocked(StateDisconnected)
		m.log.Info("realtime disconnected", zap.Error(cause))
	}
	return true
}

// Send writes an event now when connected, otherwise queues it for the next
// connection. A failed write queues the event and drops the connection.
func (m *Manager) Send(msgType string, payload any) error {
	if m.closed.Load() {
		return ErrClosed
	}

	env, err := envelope(msgType, payload)
	if err != nil {
		return err
	}

	notify := func() {}
	defer func() { notify() }()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		err := m.conn.WriteJSON(env)
		if err == nil {
			return nil
		}
		m.log.Warn("realtime write failed, queueing", zap.String("type", msgType), zap.Error(err))
		_ = m.conn.Close()
		m.conn = nil
		notify = m.setStateLocked(StateDisconnected)
	}

	m.queue = append(m.queue, queued{env: env, queuedAt: time.Now()})
	return nil
}

// Join remembers a room and joins it now if connected.
func (m *Manager) Join(kind realtime.RoomKind, id string) error {
	room, err := realtime.RoomID(kind, id)
	if err != nil {
		return err
	}
	req := realtime.RoomRequest{Kind: kind, ID: id}

	m.mu.Lock()
	m.rooms[room] = req
	connected := m.conn != nil
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.Send(realtime.TypeJoinRoom, req)
}

func (m *Manager) Leave(kind realtime.RoomKind, id string) error {
	room, err := realtime.RoomID(kind, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.rooms, room)
	connected := m.conn != nil
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.Send(realtime.TypeLeaveRoom, realtime.RoomRequest{Kind: kind, ID: id})
}

// Close stops reconnecting, drops the connection and discards queued events.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	notify := func() {}
	defer func() { notify() }()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if discarded := len(m.queue); discarded > 0 {
		m.log.Info("discarding queued events", zap.Int("count", discarded))
	}
	m.queue = nil

	var err error
	if m.conn != nil {
		err = m.conn.Close()
		m.conn = nil
	}
	notify = m.setStateLocked(StateClosed)
	return err
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Queued reports how many events wait for the next connection.
func (m *Manager) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// View returns a copy of the state built from inbound events.
func (m *Manager) View() Snapshot { return m.view.Snapshot() }

func (m *Manager) setState(s State) {
	m.mu.Lock()
	notify := m.setStateLocked(s)
	m.mu.Unlock()
	notify()
}

// setStateLocked records s and returns the OnStateChange call, which the
// caller runs after releasing m.mu.
func (m *Manager) setStateLocked(s State) func() {
	if m.state == s || m.state == StateClosed {
		return func() {}
	}
	m.state = s
	if m.cfg.OnStateChange == nil {
		return func() {}
	}
	onChange := m.cfg.OnStateChange
	return func() { onChange(s) }
}

// backoff doubles BaseDelay per attempt up to MaxDelay and keeps a random
// half of it, so clients that lost the server together do not retry together.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BaseDelay
	for i := 1; i < attempt && d < m.cfg.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, m.cfg.MaxDelay)

	m.mu.Lock()
	jitter := time.Duration(m.rng.Int63n(int64(d)/2 + 1))
	m.mu.Unlock()

	return d/2 + jitter
}

func envelope(msgType string, payload any) (realtime.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return realtime.Envelope{}, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return realtime.Envelope{Type: msgType, Data: raw}, nil
}

func sortedKeys(m map[string]realtime.RoomRequest) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
