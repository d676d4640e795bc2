package handlers

import (
	"encoding/json"
	"errors"
	"food-dispatch-service/internal/api/dto"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/logger"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Seconds a client should wait before retrying when no driver is free.
const retryAfterSeconds = 30

type errorResponse struct {
	Error   string           `json:"error"`
	Details []dto.FieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Warn("encode failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsRetryable(err) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	switch {
	case errors.Is(err, domain.ErrNoDriversAvailable):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrDriverUnavailable),
		errors.Is(err, domain.ErrStopsInFlight),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrOrderExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDriverNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrRouteNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		logger.FromContext(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// decodeBody strictly decodes a single JSON object into dst and validates it.
// It writes the 400 response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}

	if err := dto.Validate(dst); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: dto.FieldErrors(err),
		})
		return false
	}
	return true
}
