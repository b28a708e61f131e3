// Package orchestrator is the top-level request pipeline: route, optionally
// batch, execute with failover, then record the outcome.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/internal/observability"
	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services"
	"github.com/openassist/llm-orchestrator/services/batching"
	"github.com/openassist/llm-orchestrator/services/failover"
	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/services/routing"
	"github.com/openassist/llm-orchestrator/services/tracker"
)

// Service coordinates the request lifecycle end to end.
type Service struct {
	registry *providers.Registry
	router   *routing.Service
	executor *failover.Service
	batcher  *batching.Service
	tracker  *tracker.Service
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]context.CancelFunc
}

// New creates a new orchestrator service.
func New(registry *providers.Registry, router *routing.Service, executor *failover.Service, batcher *batching.Service, trk *tracker.Service, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		router:   router,
		executor: executor,
		batcher:  batcher,
		tracker:  trk,
		logger:   logger,
		pending:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit runs one request through the full pipeline and blocks until it
// reaches a terminal state. The caller's context and an explicit Cancel both
// abort the request between attempts.
func (s *Service) Submit(ctx context.Context, req *models.Request) (*models.Response, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "request content cannot be empty", nil)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.pending[req.ID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	candidates, err := s.router.Route(reqCtx, req)
	if err != nil {
		s.finish(req, nil, models.OutcomeRejected)
		return nil, err
	}

	s.logger.Debug("request routed",
		zap.String("request_id", req.ID.String()),
		zap.String("task_type", string(req.TaskType)),
		zap.Int("candidates", len(candidates)),
		zap.String("head", candidates[0].ProviderID))

	if s.batcher != nil && req.Batchable {
		if resp, ok := s.tryBatch(reqCtx, req, candidates[0]); ok {
			return resp, nil
		}
		if err := reqCtx.Err(); err != nil {
			s.finish(req, nil, models.OutcomeCancelled)
			return nil, services.NewDomainError(services.ErrorTypeCancelled, "request cancelled", err)
		}
	}

	resp, attempts, err := s.executor.Execute(reqCtx, req, candidates)
	switch {
	case err == nil:
		s.finish(req, attempts, models.OutcomeSuccess)
		return resp, nil
	case services.IsCancelledError(err):
		s.finish(req, attempts, models.OutcomeCancelled)
		return nil, err
	default:
		s.finish(req, attempts, models.OutcomeExhausted)
		return nil, err
	}
}

// tryBatch attempts the coalesced path against the head candidate. A batch
// failure is not terminal: the request falls back to individual failover
// execution over the full candidate list.
func (s *Service) tryBatch(ctx context.Context, req *models.Request, head routing.Candidate) (*models.Response, bool) {
	provider, err := s.registry.Get(head.ProviderID)
	if err != nil || !provider.Capabilities.SupportsBatching || provider.MaxBatchSize <= 1 {
		return nil, false
	}

	resp, err := s.batcher.Submit(ctx, req, head)
	if err != nil {
		if services.IsCancelledError(err) {
			return nil, false
		}
		s.logger.Warn("batch path failed, falling back to individual execution",
			zap.String("request_id", req.ID.String()),
			zap.String("provider", head.ProviderID),
			zap.Error(err))
		return nil, false
	}

	// The batch call was health-reported at dispatch; record the member's
	// share for cost accounting.
	rec := models.AttemptRecord{
		ID:            uuid.New(),
		RequestID:     req.ID,
		ProviderID:    resp.ProviderID,
		StartedAt:     resp.CompletedAt.Add(-resp.Latency),
		CompletedAt:   resp.CompletedAt,
		Outcome:       models.AttemptSuccess,
		Latency:       resp.Latency,
		EstimatedCost: resp.Cost,
	}
	observability.AddSpend(resp.ProviderID, resp.Cost)
	s.finish(req, []models.AttemptRecord{rec}, models.OutcomeSuccess)
	return resp, true
}

// finish records the terminal outcome. Recording uses a detached context so
// bookkeeping survives caller cancellation.
func (s *Service) finish(req *models.Request, attempts []models.AttemptRecord, outcome models.RequestOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.tracker.Record(ctx, req, attempts, outcome)
	observability.RecordRequestOutcome(string(outcome))
}

// Cancel aborts a pending request. The abort takes effect between attempts;
// an attempt already in flight completes so its outcome still feeds health.
func (s *Service) Cancel(requestID uuid.UUID) error {
	s.mu.Lock()
	cancel, ok := s.pending[requestID]
	s.mu.Unlock()
	if !ok {
		return services.NewDomainError(services.ErrorTypeNotFound, "request not found or already completed", nil).
			WithDetail("request_id", requestID.String())
	}
	cancel()
	s.logger.Info("request cancelled", zap.String("request_id", requestID.String()))
	return nil
}

// PendingCount returns the number of requests currently in flight.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
