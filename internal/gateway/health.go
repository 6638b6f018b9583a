package gateway

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthProbeTimeout = 3 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"` // "ok" or "degraded"
	Sessions   int               `json:"sessions"`
	Components []ComponentHealth `json:"components,omitempty"`
	Uptime     string            `json:"uptime"`
}

// ComponentHealth is the probe result for one backend.
type ComponentHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// handleHealth returns 200 when every probe passes and 503 otherwise.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Sessions: len(g.sessions.Sessions()),
		Uptime:   time.Since(g.startedAt).Round(time.Second).String(),
	}

	names := make([]string, 0, len(g.health))
	for name := range g.health {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()
	for _, name := range names {
		c := ComponentHealth{Name: name, Available: true}
		if err := g.health[name].HealthCheck(ctx); err != nil {
			c.Available = false
			c.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Components = append(resp.Components, c)
	}

	status := http.StatusOK
	if resp.Status == "degraded" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
