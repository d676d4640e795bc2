package api

import (
	"bytes"
	"context"
	"encoding/json"
	"food-dispatch-service/internal/adapters/repositories"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/realtime"
	"food-dispatch-service/internal/services"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testAPI struct {
	handler http.Handler
	store   *repositories.MemoryStore
}

func newTestAPI(t *testing.T, drivers ...domain.Driver) *testAPI {
	t.Helper()

	store := repositories.NewMemoryStore()
	for _, d := range drivers {
		store.PutDriver(d)
	}

	tracker := services.NewOrderTracker(store, nil)
	hub := realtime.NewHub(realtime.HubDeps{Tracker: tracker, Stats: store, Drivers: store}, realtime.HubConfig{})
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(func() {
		hub.Stop()
		tracker.Close()
	})

	handler := NewRouter(Deps{
		Dispatcher: services.NewDispatcher(store, store, nil, nil, services.DispatcherConfig{}),
		Tracker:    tracker,
		Orders:     store,
		Stats:      store,
		Hub:        hub,
	})
	return &testAPI{handler: handler, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func availableDriver(id string) domain.Driver {
	return domain.Driver{
		ID:       id,
		Name:     "Driver " + id,
		Status:   domain.DriverAvailable,
		Location: domain.Coordinates{Lat: 40.7128, Lon: -74.0060},
		Vehicle:  domain.Vehicle{Mode: domain.ModeScooter, Capacity: 5},
		Performance: domain.Performance{
			SuccessRate: 95,
			Rating:      4.5,
		},
	}
}

const twoStops = `{"stops":[
	{"id":"s1","orderId":"o1","location":{"lat":40.7200,"lng":-74.0000},"priority":"urgent","estimatedDuration":5,"orderValue":20},
	{"id":"s2","orderId":"o2","location":{"lat":40.7300,"lng":-73.9900},"estimatedDuration":5,"orderValue":30}
]}`

func TestDispatchEndpoint(t *testing.T) {
	a := newTestAPI(t, availableDriver("d1"))

	rec := a.do(t, http.MethodPost, "/dispatch", twoStops)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}

	var res services.DispatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Driver.ID != "d1" || len(res.Route.Stops) != 2 || res.Route.Stops[0].Stop.ID != "s1" {
		t.Fatalf("unexpected result %+v", res)
	}

	rec = a.do(t, http.MethodPost, "/routes/"+res.Route.ID+"/status", `{"status":"active"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance route status = %d body=%s", rec.Code, rec.Body)
	}
	rec = a.do(t, http.MethodPost, "/routes/"+res.Route.ID+"/status", `{"status":"active"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeated advance status = %d, want 409", rec.Code)
	}
	rec = a.do(t, http.MethodPost, "/routes/missing/status", `{"status":"active"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing route status = %d, want 404", rec.Code)
	}
}

func TestDispatchEndpointErrors(t *testing.T) {
	a := newTestAPI(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"empty stops", `{"stops":[]}`, http.StatusBadRequest},
		{"unknown field", `{"stops":[{"id":"s1","location":{"lat":1,"lng":1}}],"extra":1}`, http.StatusBadRequest},
		{"bad latitude", `{"stops":[{"id":"s1","location":{"lat":91,"lng":1}}]}`, http.StatusBadRequest},
		{"no location or address", `{"stops":[{"id":"s1"}]}`, http.StatusBadRequest},
		{"two objects", `{"stops":[]}{}`, http.StatusBadRequest},
		{"no drivers", twoStops, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		rec := a.do(t, http.MethodPost, "/dispatch", tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (body=%s)", tc.name, rec.Code, tc.want, rec.Body)
		}
	}

	rec := a.do(t, http.MethodPost, "/dispatch", twoStops)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("no Retry-After on 503")
	}

	rec = a.do(t, http.MethodGet, "/dispatch", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("GET /dispatch = %d allow=%q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestOrderEndpoints(t *testing.T) {
	a := newTestAPI(t)

	create := `{"orderId":"o1","customerId":"c1","items":[{"productId":"p1","quantity":2,"price":5}],"total":10}`
	if rec := a.do(t, http.MethodPost, "/orders", create); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := a.do(t, http.MethodPost, "/orders", create); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", rec.Code)
	}

	rec := a.do(t, http.MethodPost, "/orders/o1/status", `{"status":"confirmed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d body=%s", rec.Code, rec.Body)
	}
	var ev domain.OrderStatusEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.OrderID != "o1" || ev.Status != domain.OrderConfirmed || ev.CustomerID != "c1" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if rec := a.do(t, http.MethodPost, "/orders/o1/status", `{"status":"delivered"}`); rec.Code != http.StatusConflict {
		t.Fatalf("illegal transition status = %d, want 409", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/orders/o1/status", `{"status":"baking"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status = %d, want 400", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/orders/ghost/status", `{"status":"confirmed"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order status = %d, want 404", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/orders/o1/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	var history struct {
		Events []domain.OrderStatusEvent `json:"events"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history.Events) != 1 || history.Events[0].Status != domain.OrderConfirmed {
		t.Fatalf("history = %+v", history.Events)
	}
}

func TestSnapshotAndHealthEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.store.PutOrder(domain.OrderState{OrderID: "o1", Status: domain.OrderPreparing, Total: 12})

	rec := a.do(t, http.MethodGet, "/snapshots/kitchen", "")
	var kitchen domain.KitchenSnapshot
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &kitchen) != nil || kitchen.ActiveOrders != 1 {
		t.Fatalf("kitchen snapshot %d %s", rec.Code, rec.Body)
	}

	rec = a.do(t, http.MethodGet, "/snapshots/dashboard", "")
	var dash domain.DashboardSnapshot
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &dash) != nil || dash.TodayOrders != 1 {
		t.Fatalf("dashboard snapshot %d %s", rec.Code, rec.Body)
	}

	if rec := a.do(t, http.MethodGet, "/drivers/active", ""); rec.Code != http.StatusOK {
		t.Fatalf("active drivers status = %d", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d body=%s", rec.Code, rec.Body)
	}

	if rec := a.do(t, http.MethodPost, "/inventory", `{"productId":"p1","stock":2,"threshold":5}`); rec.Code != http.StatusAccepted {
		t.Fatalf("inventory status = %d", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/notifications", `{"type":"promo","title":"Hi"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("notification without customer = %d, want 400", rec.Code)
	}
}
