package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/repositories/postgres"
	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	registry *providers.Registry
	db       *postgres.DB // nil when the archive is disabled
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(registry *providers.Registry, db *postgres.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		db:       db,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz
// Basic liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
// Ready means at least one provider is registered and, when configured,
// the attempt archive is reachable.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.registry.Count() == 0 {
		checks["providers"] = "none registered"
		allHealthy = false
	} else {
		checks["providers"] = "healthy"
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("archive health check failed", zap.Error(err))
			checks["archive"] = "unhealthy"
			allHealthy = false
		} else {
			checks["archive"] = "healthy"
		}
	}

	resp := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if !allHealthy {
		resp.Status = "not ready"
		_ = utils.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	_ = utils.WriteOK(w, resp)
}
