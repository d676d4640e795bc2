package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks one dependency, e.g. (*sql.DB).PingContext.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	// Named dependency checks; an empty map reports liveness only.
	Checks map[string]Pinger
	// Returns -1 once the hub has stopped.
	Connections func() int
}

// Health reports liveness, open websocket connections and dependency checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.Checks))
	for name, ping := range h.Checks {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	res := map[string]any{"status": "ok", "checks": checks}
	if h.Connections != nil {
		n := h.Connections()
		if n < 0 {
			status = http.StatusServiceUnavailable
		}
		res["connections"] = n
	}
	if status != http.StatusOK {
		res["status"] = "degraded"
	}

	writeJSON(w, r, status, res)
}
