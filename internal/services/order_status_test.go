package services

import (
	"context"
	"errors"
	"food-dispatch-service/internal/adapters/repositories"
	"food-dispatch-service/internal/domain"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type failingOrders struct {
	*repositories.MemoryStore
}

func (failingOrders) AppendStatusEvent(ctx context.Context, event domain.OrderStatusEvent) error {
	return errors.New("write failed")
}

func newTestTracker(t *testing.T, orders ...domain.OrderState) (*OrderTracker, *repositories.MemoryStore) {
	t.Helper()

	store := repositories.NewMemoryStore()
	for _, o := range orders {
		store.PutOrder(o)
	}
	tracker := NewOrderTracker(store, nil)
	t.Cleanup(tracker.Close)
	return tracker, store
}

func mustTransition(t *testing.T, tr *OrderTracker, orderID string, status domain.OrderStatus) *TransitionResult {
	t.Helper()

	res, err := tr.Transition(context.Background(), TransitionRequest{OrderID: orderID, Status: status})
	if err != nil {
		t.Fatalf("%s -> %s: %v", orderID, status, err)
	}
	if err := <-res.Persisted; err != nil {
		t.Fatalf("persist %s: %v", status, err)
	}
	return res
}

func TestOrderTrackerLifecycle(t *testing.T) {
	tracker, store := newTestTracker(t, domain.OrderState{OrderID: "o1", CustomerID: "c1", Status: domain.OrderPending})

	steps := []domain.OrderStatus{
		domain.OrderConfirmed,
		domain.OrderPreparing,
		domain.OrderReadyForDelivery,
		domain.OrderOutForDelivery,
		domain.OrderDelivered,
	}

	for _, status := range steps {
		res := mustTransition(t, tracker, "o1", status)
		if res.Event.CustomerID != "c1" || res.Event.Message != status.Message() {
			t.Fatalf("unexpected event %+v", res.Event)
		}
		wantRefresh := status == domain.OrderReadyForDelivery || status == domain.OrderDelivered
		if res.RefreshStats != wantRefresh {
			t.Fatalf("%s: refresh stats = %v", status, res.RefreshStats)
		}
	}

	history, err := tracker.History(context.Background(), "o1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != len(steps) {
		t.Fatalf("expected %d events, got %d", len(steps), len(history))
	}
	for i := 1; i < len(history); i++ {
		if !history[i].Timestamp.After(history[i-1].Timestamp) {
			t.Fatalf("event %d timestamp not after previous", i)
		}
	}

	persisted, _ := store.ListStatusEvents(context.Background(), "o1")
	if len(persisted) != len(steps) {
		t.Fatalf("expected %d persisted events, got %d", len(steps), len(persisted))
	}
	state, _ := store.GetOrder(context.Background(), "o1")
	if state.Status != domain.OrderDelivered {
		t.Fatalf("persisted status = %s", state.Status)
	}
}

func TestOrderTrackerRejectsIllegalTransition(t *testing.T) {
	tracker, store := newTestTracker(t, domain.OrderState{OrderID: "o1", Status: domain.OrderDelivered})

	_, err := tracker.Transition(context.Background(), TransitionRequest{OrderID: "o1", Status: domain.OrderPreparing})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}

	var te *domain.TransitionError
	if !errors.As(err, &te) || te.From != "delivered" || te.To != "preparing" {
		t.Fatalf("unexpected transition error %#v", err)
	}

	tracker.Close()
	if events, _ := store.ListStatusEvents(context.Background(), "o1"); len(events) != 0 {
		t.Fatalf("illegal transition appended %d events", len(events))
	}
	if state, _ := tracker.Status(context.Background(), "o1"); state.Status != domain.OrderDelivered {
		t.Fatalf("status changed to %s", state.Status)
	}
}

func TestOrderTrackerValidation(t *testing.T) {
	tracker, _ := newTestTracker(t, domain.OrderState{OrderID: "o1", Status: domain.OrderPending})
	ctx := context.Background()

	if _, err := tracker.Transition(ctx, TransitionRequest{OrderID: "missing", Status: domain.OrderConfirmed}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("missing order err = %v, want ErrOrderNotFound", err)
	}
	if _, err := tracker.Transition(ctx, TransitionRequest{OrderID: "o1", Status: "baking"}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("unknown status err = %v, want ErrInvalidStatus", err)
	}
	if _, err := tracker.Transition(ctx, TransitionRequest{Status: domain.OrderConfirmed}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing id err = %v, want ErrInvalidInput", err)
	}
}

func TestOrderTrackerConcurrentTransitions(t *testing.T) {
	tracker, _ := newTestTracker(t, domain.OrderState{OrderID: "o1", Status: domain.OrderPending})

	var succeeded, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Transition(context.Background(), TransitionRequest{OrderID: "o1", Status: domain.OrderConfirmed})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrIllegalTransition):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 || rejected.Load() != 15 {
		t.Fatalf("succeeded=%d rejected=%d, want 1 and 15", succeeded.Load(), rejected.Load())
	}
}

func TestOrderTrackerPersistenceFailureKeepsTransition(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutOrder(domain.OrderState{OrderID: "o1", Status: domain.OrderPending})
	tracker := NewOrderTracker(failingOrders{store}, nil)
	defer tracker.Close()

	res, err := tracker.Transition(context.Background(), TransitionRequest{OrderID: "o1", Status: domain.OrderConfirmed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-res.Persisted:
		if err == nil {
			t.Fatalf("expected persistence error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("persistence outcome not reported")
	}

	// The in-memory state moved on even though the write failed.
	if _, err := tracker.Transition(context.Background(), TransitionRequest{OrderID: "o1", Status: domain.OrderPreparing}); err != nil {
		t.Fatalf("confirmed -> preparing: %v", err)
	}
}

func TestOrderTrackerHistoryIncludesPersistedEvents(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutOrder(domain.OrderState{OrderID: "o1", Status: domain.OrderPending})

	first := NewOrderTracker(store, nil)
	confirmed := mustTransition(t, first, "o1", domain.OrderConfirmed)
	first.Close()

	second := NewOrderTracker(store, nil)
	defer second.Close()

	// A clock behind the persisted event must not reorder the history.
	second.now = func() time.Time { return confirmed.Event.Timestamp.Add(-time.Minute) }
	preparing := mustTransition(t, second, "o1", domain.OrderPreparing)

	history, err := second.History(context.Background(), "o1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != confirmed.Event.ID || history[1].ID != preparing.Event.ID {
		t.Fatalf("history = %+v, want confirmed then preparing", history)
	}
	if !history[1].Timestamp.After(history[0].Timestamp) {
		t.Fatalf("preparing at %s not after confirmed at %s", history[1].Timestamp, history[0].Timestamp)
	}
}

func TestOrderTrackerEvictsFinishedOrders(t *testing.T) {
	tracker, _ := newTestTracker(t,
		domain.OrderState{OrderID: "o1", Status: domain.OrderOutForDelivery},
		domain.OrderState{OrderID: "o2", Status: domain.OrderPending},
	)

	mustTransition(t, tracker, "o2", domain.OrderConfirmed)
	mustTransition(t, tracker, "o1", domain.OrderDelivered)

	if got := tracker.Tracked(); got != 1 {
		t.Fatalf("tracked = %d, want only the open order", got)
	}

	history, err := tracker.History(context.Background(), "o1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Status != domain.OrderDelivered {
		t.Fatalf("history after eviction = %+v", history)
	}

	state, err := tracker.Status(context.Background(), "o1")
	if err != nil || state.Status != domain.OrderDelivered {
		t.Fatalf("status after eviction = %+v, %v", state, err)
	}

	// Rejected transitions on terminal orders do not stay cached either.
	if _, err := tracker.Transition(context.Background(), TransitionRequest{OrderID: "o1", Status: domain.OrderPreparing}); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
	if got := tracker.Tracked(); got != 1 {
		t.Fatalf("tracked = %d after rejected transition, want 1", got)
	}
}
