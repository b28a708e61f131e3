package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/middleware"
	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services/orchestrator"
	"github.com/openassist/llm-orchestrator/utils"
)

// OrchestrateRequest is the submit-request body.
type OrchestrateRequest struct {
	Content       string             `json:"content" validate:"required"`
	TaskType      string             `json:"task_type,omitempty" validate:"omitempty,oneof=completion analysis refactor debug generic"`
	Tier          string             `json:"tier,omitempty"`
	BudgetCeiling float64            `json:"budget_ceiling,omitempty" validate:"omitempty,gte=0"`
	Context       *OrchestrateContext `json:"context,omitempty"`
}

// OrchestrateContext carries optional code metadata.
type OrchestrateContext struct {
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// OrchestrateResponse is the submit-request result body.
type OrchestrateResponse struct {
	RequestID  string  `json:"request_id"`
	ProviderID string  `json:"provider_id"`
	Content    string  `json:"content"`
	TokensUsed int     `json:"tokens_used"`
	LatencyMs  int64   `json:"latency_ms"`
	Cost       float64 `json:"cost"`
	Attempts   int     `json:"attempts"`
	Batched    bool    `json:"batched"`
}

// OrchestrateHandler handles request submission and cancellation.
type OrchestrateHandler struct {
	service *orchestrator.Service
	logger  *zap.Logger
}

// NewOrchestrateHandler creates a new OrchestrateHandler
func NewOrchestrateHandler(service *orchestrator.Service, logger *zap.Logger) *OrchestrateHandler {
	return &OrchestrateHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSubmit handles POST /api/v1/orchestrate
func (h *OrchestrateHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var body OrchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&body); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	var reqCtx *models.RequestContext
	if body.Context != nil {
		reqCtx = &models.RequestContext{
			Code:     body.Context.Code,
			Language: body.Context.Language,
			FilePath: body.Context.FilePath,
		}
	}

	req := models.NewRequest(body.Content, reqCtx, models.TaskType(body.TaskType), body.Tier, body.BudgetCeiling)

	resp, err := h.service.Submit(ctx, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, OrchestrateResponse{
		RequestID:  resp.RequestID.String(),
		ProviderID: resp.ProviderID,
		Content:    resp.Content,
		TokensUsed: resp.TokensUsed,
		LatencyMs:  resp.Latency.Milliseconds(),
		Cost:       resp.Cost,
		Attempts:   resp.Attempts,
		Batched:    resp.Batched,
	})
}

// HandleCancel handles DELETE /api/v1/requests/{id}
func (h *OrchestrateHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request id", map[string]interface{}{"id": idParam})
		return
	}

	if err := h.service.Cancel(id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
