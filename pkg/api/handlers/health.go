package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is anything that can report whether it is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated:
//   - Liveness probe: is the server process running?
//   - Readiness probe: are the metadata store and loaded backends reachable?
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a health handler. checks maps a component name
// to its probe; nil checkers are skipped.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	encodeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "storagebox",
	}))
}

// ComponentHealth is the readiness of one component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Readiness handles GET /health/ready. Returns 503 if any component
// fails its probe.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]ComponentHealth, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		start := time.Now()
		err := check.HealthCheck(ctx)
		c := ComponentHealth{Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			healthy = false
			c.Status = "unhealthy"
			c.Error = err.Error()
		}
		components[name] = c
	}

	if !healthy {
		resp := unhealthyResponse("one or more components are unhealthy")
		resp.Data = components
		encodeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	encodeJSON(w, http.StatusOK, healthyResponse(components))
}
