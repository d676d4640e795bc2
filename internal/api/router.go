package api

import (
	"food-dispatch-service/internal/api/handlers"
	"food-dispatch-service/internal/ports"
	"food-dispatch-service/internal/realtime"
	"food-dispatch-service/internal/services"
	"net/http"
)

type Deps struct {
	Dispatcher *services.Dispatcher
	Tracker    *services.OrderTracker
	Orders     ports.OrderWriter
	Stats      ports.StatsProvider
	Hub        *realtime.Hub
	Checks     map[string]handlers.Pinger
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	dispatchHandler := &handlers.DispatchHandler{Dispatcher: deps.Dispatcher}
	orderHandler := &handlers.OrderHandler{
		Orders:  deps.Orders,
		Tracker: deps.Tracker,
		Hub:     deps.Hub,
	}
	realtimeHandler := &handlers.RealtimeHandler{Stats: deps.Stats, Hub: deps.Hub}
	healthHandler := &handlers.HealthHandler{
		Checks:      deps.Checks,
		Connections: deps.Hub.ConnectionCount,
	}

	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/dispatch", dispatchHandler.Dispatch)
	mux.HandleFunc("/routes/{id}/status", dispatchHandler.RouteStatus)
	mux.HandleFunc("/orders", orderHandler.Create)
	mux.HandleFunc("/orders/{id}/status", orderHandler.UpdateStatus)
	mux.HandleFunc("/orders/{id}/events", orderHandler.Events)
	mux.HandleFunc("/snapshots/kitchen", realtimeHandler.KitchenSnapshot)
	mux.HandleFunc("/snapshots/dashboard", realtimeHandler.DashboardSnapshot)
	mux.HandleFunc("/drivers/active", realtimeHandler.ActiveDrivers)
	mux.HandleFunc("/inventory", realtimeHandler.Inventory)
	mux.HandleFunc("/notifications", realtimeHandler.Notify)
	mux.HandleFunc("/ws", deps.Hub.ServeWS)

	return requestIDMiddleware(loggingMiddleware(mux))
}
