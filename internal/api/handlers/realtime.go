package handlers

import (
	"food-dispatch-service/internal/api/dto"
	"food-dispatch-service/internal/ports"
	"food-dispatch-service/internal/realtime"
	"net/http"
	"time"
)

type RealtimeHandler struct {
	Stats ports.StatsProvider
	Hub   *realtime.Hub
}

func (h *RealtimeHandler) KitchenSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	snap, err := h.Stats.KitchenSnapshot(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

func (h *RealtimeHandler) DashboardSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	snap, err := h.Stats.DashboardSnapshot(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// ActiveDrivers lists drivers currently reporting their location.
func (h *RealtimeHandler) ActiveDrivers(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	drivers, err := h.Hub.ActiveDrivers(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"drivers": drivers})
}

func (h *RealtimeHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.InventoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	change := realtime.InventoryChange{
		ProductID: req.ProductID,
		Name:      req.Name,
		Stock:     req.Stock,
		Threshold: req.Threshold,
		Level:     realtime.Level(req.Stock, req.Threshold),
	}
	h.Hub.NotifyInventory(change)
	writeJSON(w, r, http.StatusAccepted, change)
}

func (h *RealtimeHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.NotificationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.Hub.NotifyCustomer(realtime.Notification{
		CustomerID: req.CustomerID,
		Kind:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		OrderID:    req.OrderID,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
