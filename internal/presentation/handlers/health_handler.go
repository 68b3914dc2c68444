package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Health states reported by GET /health
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker defines the interface for health checking components
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type dependency struct {
	name     string
	checker  HealthChecker
	critical bool
}

// HealthHandler reports the state of the database and of the optional cache and node.
// Only the database is critical: queries keep working without the other two.
type HealthHandler struct {
	deps []dependency
}

// NewHealthHandler creates a new health handler. cache and node may be nil.
func NewHealthHandler(db, cache, node HealthChecker) *HealthHandler {
	deps := []dependency{{name: "database", checker: db, critical: true}}
	if cache != nil {
		deps = append(deps, dependency{name: "cache", checker: cache})
	}
	if node != nil {
		deps = append(deps, dependency{name: "node", checker: node})
	}
	return &HealthHandler{deps: deps}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string, len(h.deps)),
	}

	for _, dep := range h.deps {
		err := dep.checker.HealthCheck(ctx)
		if err == nil {
			response.Services[dep.name] = StatusHealthy
			continue
		}

		response.Services[dep.name] = StatusUnhealthy + ": " + err.Error()
		switch {
		case dep.critical:
			response.Status = StatusUnhealthy
		case response.Status == StatusHealthy:
			response.Status = StatusDegraded
		}
	}

	status := http.StatusOK
	if response.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// Ready handles GET /ready. Only critical dependencies gate readiness.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, dep := range h.deps {
		if !dep.critical {
			continue
		}
		if err := dep.checker.HealthCheck(ctx); err != nil {
			http.Error(w, dep.name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
