package handlers

import (
	"food-dispatch-service/internal/api/dto"
	"food-dispatch-service/internal/ports"
	"food-dispatch-service/internal/realtime"
	"food-dispatch-service/internal/services"
	"net/http"
	"time"
)

type OrderHandler struct {
	Orders  ports.OrderWriter
	Tracker *services.OrderTracker
	Hub     *realtime.Hub
}

// Create registers a newly placed order and announces it to the kitchen.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	order := req.ToDomain(now)
	if err := h.Orders.CreateOrder(r.Context(), order); err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.Hub.NotifyNewOrder(req.ToAnnouncement(now))
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"orderId": order.OrderID,
		"status":  order.Status,
	})
}

// UpdateStatus applies a status change and broadcasts it.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.OrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ev, err := h.Hub.ApplyOrderStatus(r.Context(), req.ToUpdate(r.PathValue("id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ev)
}

// Events returns the order's tracking history oldest first.
func (h *OrderHandler) Events(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	events, err := h.Tracker.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"events": events})
}
