package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports service liveness plus the state of its
// dependencies. Any failing check turns the response into a 503.
type HealthHandler struct {
	checks map[string]HealthCheck
	gauges map[string]func() any
}

// NewHealthHandler creates a health endpoint over the given dependency
// checks
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, gauges: make(map[string]func() any)}
}

// AddGauge attaches a live value (e.g. open connection count) to the
// health payload
func (h *HealthHandler) AddGauge(name string, fn func() any) {
	h.gauges[name] = fn
}

// ServeHTTP runs every check with a short timeout
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	payload := map[string]any{
		"status": "ok",
		"checks": results,
	}
	if status != http.StatusOK {
		payload["status"] = "degraded"
	}
	for name, fn := range h.gauges {
		payload[name] = fn()
	}

	respondJSON(w, status, payload)
}

// VersionHandler reports the build version
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"version": version})
	}
}
