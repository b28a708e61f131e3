package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/services/orchestrator"
	"github.com/openassist/llm-orchestrator/services/tracker"
	"github.com/openassist/llm-orchestrator/utils"
)

// defaultStatsWindow bounds the aggregation when no window is requested.
const defaultStatsWindow = time.Hour

// StatsResponse is the aggregated stats body.
type StatsResponse struct {
	Summary *tracker.Summary `json:"summary"`
	Pending int              `json:"pending_requests"`
}

// StatsHandler exposes cost/SLA aggregates over HTTP.
type StatsHandler struct {
	tracker      *tracker.Service
	orchestrator *orchestrator.Service
	logger       *zap.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(trk *tracker.Service, orch *orchestrator.Service, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		tracker:      trk,
		orchestrator: orch,
		logger:       logger,
	}
}

// HandleStats handles GET /api/v1/stats?window=15m
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			_ = utils.WriteBadRequest(w, "Invalid window duration", map[string]interface{}{"window": raw})
			return
		}
		window = parsed
	}

	_ = utils.WriteOK(w, StatsResponse{
		Summary: h.tracker.Aggregate(window),
		Pending: h.orchestrator.PendingCount(),
	})
}
