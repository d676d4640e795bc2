package services

import (
	"context"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/ports"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPersistQueue = 1024

var ErrPersistQueueFull = errors.New("status persistence queue is full")

type TransitionRequest struct {
	OrderID        string
	Status         domain.OrderStatus
	DriverID       string
	DriverLocation *domain.Coordinates
	ETA            *time.Time
	// Message overrides the default text for the status.
	Message string
}

type TransitionResult struct {
	Event    domain.OrderStatusEvent
	Previous domain.OrderStatus
	// Set for ready_for_delivery and delivered: kitchen and dashboard figures changed.
	RefreshStats bool
	// Receives the persistence outcome exactly once, then is closed.
	Persisted <-chan error
}

type persistJob struct {
	event domain.OrderStatusEvent
	done  chan error
}

// OrderTracker enforces the order lifecycle. Transitions for the same order
// are serialized; the check against the current status and the update happen
// under one lock so two racing transitions cannot both succeed.
//
// Events are written by a single background writer in the order they were
// accepted. A failed write is logged and does not undo the transition.
// Orders are cached from their first transition, seeded with the persisted
// history, and evicted once they are terminal and every write has finished.
type OrderTracker struct {
	repo ports.OrderRepository
	log  *zap.Logger
	now  func() time.Time

	mu     sync.Mutex
	orders map[string]*trackedOrder

	queue     chan persistJob
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type trackedOrder struct {
	state  domain.OrderState
	events []domain.OrderStatusEvent
	// Persistence jobs queued and not yet written.
	pending int
}

func NewOrderTracker(repo ports.OrderRepository, log *zap.Logger) *OrderTracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &OrderTracker{
		repo:   repo,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		orders: make(map[string]*trackedOrder),
		queue:  make(chan persistJob, defaultPersistQueue),
	}

	t.wg.Add(1)
	go t.writer(t.queue)

	return t
}

// Transition validates and applies a status change, returning the emitted event.
// An illegal change returns a *domain.TransitionError and emits nothing.
func (t *OrderTracker) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("transition: missing order id: %w", domain.ErrInvalidInput)
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("transition: order %s status %q: %w", req.OrderID, req.Status, domain.ErrInvalidStatus)
	}
	if req.DriverLocation != nil {
		if err := req.DriverLocation.Validate(); err != nil {
			return nil, fmt.Errorf("transition: order %s: %w", req.OrderID, err)
		}
	}

	// Load outside the lock; a concurrent load of the same order is resolved below.
	loaded, err := t.load(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[req.OrderID]
	if !ok {
		order = loaded
		t.orders[req.OrderID] = order
	}
	state := order.state

	if !domain.CanTransition(state.Status, req.Status) {
		t.evictLocked(req.OrderID, order)
		return nil, &domain.TransitionError{
			Entity: "order",
			ID:     req.OrderID,
			From:   string(state.Status),
			To:     string(req.Status),
		}
	}

	ts := t.now()
	if n := len(order.events); n > 0 {
		if last := order.events[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Millisecond)
		}
	}

	msg := req.Message
	if msg == "" {
		msg = req.Status.Message()
	}

	event := domain.OrderStatusEvent{
		ID:             uuid.NewString(),
		OrderID:        req.OrderID,
		CustomerID:     state.CustomerID,
		Status:         req.Status,
		Message:        msg,
		Timestamp:      ts,
		DriverID:       req.DriverID,
		DriverLocation: req.DriverLocation,
		ETA:            req.ETA,
	}

	previous := state.Status
	order.state.Status = req.Status
	order.state.UpdatedAt = ts
	order.events = append(order.events, event)

	done := make(chan error, 1)
	if t.enqueue(persistJob{event: event, done: done}) {
		order.pending++
	}
	t.evictLocked(req.OrderID, order)

	return &TransitionResult{
		Event:        event,
		Previous:     previous,
		RefreshStats: req.Status == domain.OrderReadyForDelivery || req.Status == domain.OrderDelivered,
		Persisted:    done,
	}, nil
}

// Status returns the last known state of an order.
func (t *OrderTracker) Status(ctx context.Context, orderID string) (*domain.OrderState, error) {
	t.mu.Lock()
	order, ok := t.orders[orderID]
	var state domain.OrderState
	if ok {
		state = order.state
	}
	t.mu.Unlock()
	if ok {
		return &state, nil
	}

	loaded, err := t.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order status: %w", err)
	}
	return loaded, nil
}

// History returns the events of an order, oldest first. Cached orders include
// events still waiting to be written; others are read from the repository.
func (t *OrderTracker) History(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	t.mu.Lock()
	order, ok := t.orders[orderID]
	var out []domain.OrderStatusEvent
	if ok {
		out = slices.Clone(order.events)
	}
	t.mu.Unlock()
	if ok {
		return out, nil
	}

	persisted, err := t.repo.ListStatusEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}
	return persisted, nil
}

// Close stops accepting persistence work and waits for queued events to be written.
func (t *OrderTracker) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		close(t.queue)
		t.queue = nil
		t.mu.Unlock()
	})
	t.wg.Wait()
}

// Tracked reports how many orders are held in memory.
func (t *OrderTracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}

// load returns the cached order or reads its state and persisted events.
func (t *OrderTracker) load(ctx context.Context, orderID string) (*trackedOrder, error) {
	t.mu.Lock()
	order, ok := t.orders[orderID]
	t.mu.Unlock()
	if ok {
		return order, nil
	}

	state, err := t.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	events, err := t.repo.ListStatusEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s events: %w", orderID, err)
	}
	return &trackedOrder{state: *state, events: events}, nil
}

// evictLocked drops a terminal order once nothing is left to write for it.
func (t *OrderTracker) evictLocked(orderID string, order *trackedOrder) {
	if order.pending > 0 || !order.state.Status.Terminal() {
		return
	}
	if t.orders[orderID] == order {
		delete(t.orders, orderID)
	}
}

// enqueue must be called with t.mu held so queue order matches acceptance order.
// It reports whether the job reached the writer.
func (t *OrderTracker) enqueue(job persistJob) bool {
	if t.queue == nil {
		job.done <- ErrPersistQueueFull
		close(job.done)
		return false
	}

	select {
	case t.queue <- job:
		return true
	default:
		t.log.Error("drop status event persistence",
			zap.String("order_id", job.event.OrderID),
			zap.String("status", string(job.event.Status)),
			zap.Error(ErrPersistQueueFull),
		)
		job.done <- ErrPersistQueueFull
		close(job.done)
		return false
	}
}

func (t *OrderTracker) writer(queue <-chan persistJob) {
	defer t.wg.Done()

	for job := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.repo.AppendStatusEvent(ctx, job.event)
		cancel()

		if err != nil {
			t.log.Error("persist status event failed",
				zap.String("order_id", job.event.OrderID),
				zap.String("status", string(job.event.Status)),
				zap.String("event_id", job.event.ID),
				zap.Error(err),
			)
		}

		t.mu.Lock()
		if order, ok := t.orders[job.event.OrderID]; ok {
			order.pending--
			t.evictLocked(job.event.OrderID, order)
		}
		t.mu.Unlock()

		job.done <- err
		close(job.done)
	}
}
