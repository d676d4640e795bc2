package handlers

import (
	"food-dispatch-service/internal/api/dto"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/services"
	"net/http"
	"time"
)

type DispatchHandler struct {
	Dispatcher *services.Dispatcher
}

// Dispatch builds a route for the submitted stops and assigns a driver.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.DispatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	depart := time.Now().UTC()
	if req.DepartAt != nil {
		depart = *req.DepartAt
	}

	res, err := h.Dispatcher.Dispatch(r.Context(), services.DispatchRequest{
		Stops:    req.ToStops(),
		Origin:   req.Origin.ToDomain(),
		DriverID: req.DriverID,
		Criteria: req.Criteria,
		DepartAt: depart,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}

// RouteStatus moves a route to active, completed or cancelled.
func (h *DispatchHandler) RouteStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.RouteStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	route, err := h.Dispatcher.AdvanceRoute(r.Context(), r.PathValue("id"), domain.RouteStatus(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, route)
}
