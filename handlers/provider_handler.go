package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/utils"
)

// ProviderStatus is the reporting view of one registered provider.
type ProviderStatus struct {
	ID                  string  `json:"id"`
	Kind                string  `json:"kind"`
	Priority            int     `json:"priority"`
	Enabled             bool    `json:"enabled"`
	Status              string  `json:"status"`
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	ErrorRate           float64 `json:"error_rate"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	Observations        int64   `json:"observations"`
	LastSuccess         string  `json:"last_success,omitempty"`
	LastFailure         string  `json:"last_failure,omitempty"`
}

// ProviderHandler exposes the provider registry over HTTP.
type ProviderHandler struct {
	registry *providers.Registry
	logger   *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(registry *providers.Registry, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	snapshots := h.registry.Snapshot()

	out := make([]ProviderStatus, 0, len(snapshots))
	for _, snap := range snapshots {
		ps := ProviderStatus{
			ID:                  snap.Provider.ID,
			Kind:                string(snap.Provider.Kind),
			Priority:            snap.Provider.Priority,
			Enabled:             snap.Provider.Enabled,
			Status:              string(snap.Health.Status),
			AvgLatencyMs:        snap.Health.AvgLatencyMs,
			ErrorRate:           snap.Health.ErrorRate,
			ConsecutiveFailures: snap.Health.ConsecutiveFailures,
			Observations:        snap.Health.Observations,
		}
		if !snap.Health.LastSuccess.IsZero() {
			ps.LastSuccess = snap.Health.LastSuccess.UTC().Format(time.RFC3339)
		}
		if !snap.Health.LastFailure.IsZero() {
			ps.LastFailure = snap.Health.LastFailure.UTC().Format(time.RFC3339)
		}
		out = append(out, ps)
	}

	_ = utils.WriteOK(w, out)
}
