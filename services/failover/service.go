// Package failover executes a routed request against its candidate list,
// walking down the list until an attempt succeeds or the attempt cap is hit.
// Every attempt, successful or not, is reported back into provider health
// and balancer bookkeeping.
package failover

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/internal/observability"
	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services"
	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/services/routing"
)

// DefaultMaxFallbackAttempts caps sequential attempts per request.
const DefaultMaxFallbackAttempts = 3

// OutcomeSink receives per-attempt completion notices. Implemented by the
// balancer.
type OutcomeSink interface {
	RecordOutcome(providerID string)
}

// Config holds failover parameters.
type Config struct {
	// MaxFallbackAttempts caps how many candidates a single request may try
	MaxFallbackAttempts int
}

// Service is the failover executor.
type Service struct {
	registry *providers.Registry
	outcomes OutcomeSink
	cfg      Config
	logger   *zap.Logger
}

// New creates a new failover executor.
func New(registry *providers.Registry, outcomes OutcomeSink, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxFallbackAttempts <= 0 {
		cfg.MaxFallbackAttempts = DefaultMaxFallbackAttempts
	}
	return &Service{
		registry: registry,
		outcomes: outcomes,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute tries candidates in order until one succeeds. Attempts are strictly
// sequential: at most one provider call is in flight per request. The returned
// attempt history covers every attempt made, including the failures preceding
// a success.
//
// Cancellation is checked between attempts only. An attempt already in flight
// runs to completion under its own deadline so its outcome still feeds health
// bookkeeping; the result is then discarded if the caller has gone away.
func (s *Service) Execute(ctx context.Context, req *models.Request, candidates []routing.Candidate) (*models.Response, []models.AttemptRecord, error) {
	limit := len(candidates)
	if limit > s.cfg.MaxFallbackAttempts {
		limit = s.cfg.MaxFallbackAttempts
	}

	attempts := make([]models.AttemptRecord, 0, limit)
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, attempts, services.NewDomainError(services.ErrorTypeCancelled, "request cancelled before attempt", err).
				WithDetail("attempts_made", len(attempts))
		}

		cand := candidates[i]
		provider, err := s.registry.Get(cand.ProviderID)
		if err != nil {
			// Concurrently deregistered; treat as a skipped candidate.
			continue
		}

		rec, result := s.attempt(ctx, req, provider, cand)
		attempts = append(attempts, rec)

		s.registry.ReportOutcome(provider.ID, rec)
		if s.outcomes != nil {
			s.outcomes.RecordOutcome(provider.ID)
		}
		observability.RecordAttempt(provider.ID, string(rec.Outcome), rec.Latency)

		if !rec.Succeeded() {
			s.logger.Warn("provider attempt failed",
				zap.String("request_id", req.ID.String()),
				zap.String("provider", provider.ID),
				zap.String("outcome", string(rec.Outcome)),
				zap.Int("attempt", i+1),
				zap.String("error", rec.ErrorDetail))
			continue
		}

		if err := ctx.Err(); err != nil {
			// The caller disappeared while the attempt ran. Health already
			// saw the outcome; the response has no recipient.
			return nil, attempts, services.NewDomainError(services.ErrorTypeCancelled, "request cancelled during attempt", err).
				WithDetail("attempts_made", len(attempts))
		}

		observability.AddSpend(provider.ID, rec.EstimatedCost)
		return &models.Response{
			RequestID:   req.ID,
			ProviderID:  provider.ID,
			Content:     result.Content,
			TokensUsed:  result.TokensUsed,
			Latency:     rec.Latency,
			Cost:        rec.EstimatedCost,
			Attempts:    len(attempts),
			CompletedAt: rec.CompletedAt,
		}, attempts, nil
	}

	summary := make([]map[string]string, 0, len(attempts))
	for _, a := range attempts {
		summary = append(summary, map[string]string{
			"provider": a.ProviderID,
			"outcome":  string(a.Outcome),
			"error":    a.ErrorDetail,
		})
	}
	return nil, attempts, services.NewDomainError(services.ErrorTypeExhausted, "all candidate providers failed", nil).
		WithDetail("attempts", summary).
		WithDetail("candidates_tried", len(attempts))
}

// attempt runs one provider invocation under the provider's own timeout.
// The attempt context is detached from the caller's cancellation so an
// in-flight call always produces a classifiable outcome.
func (s *Service) attempt(parent context.Context, req *models.Request, provider *providers.Provider, cand routing.Candidate) (models.AttemptRecord, *providers.InvokeResult) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), provider.Timeout)
	defer cancel()

	started := time.Now()
	result, err := provider.Adapter.Invoke(attemptCtx, buildPayload(req, provider))
	completed := time.Now()

	rec := models.AttemptRecord{
		ID:            uuid.New(),
		RequestID:     req.ID,
		ProviderID:    provider.ID,
		StartedAt:     started,
		CompletedAt:   completed,
		Latency:       completed.Sub(started),
		EstimatedCost: cand.EstimatedCost,
	}

	switch {
	case err == nil:
		rec.Outcome = models.AttemptSuccess
		if result.RawLatency > 0 {
			rec.Latency = result.RawLatency
		}
	case providers.IsRejection(err):
		rec.Outcome = models.AttemptRejected
		rec.ErrorDetail = err.Error()
		rec.EstimatedCost = 0
	case errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded:
		rec.Outcome = models.AttemptTimeout
		rec.ErrorDetail = err.Error()
		rec.EstimatedCost = 0
	default:
		rec.Outcome = models.AttemptError
		rec.ErrorDetail = err.Error()
		rec.EstimatedCost = 0
	}

	return rec, result
}

// ExecuteBatch sends a prepared payload set to a single provider as one
// backend call. The caller owns splitting results back to batch members;
// the executor only classifies the call and feeds health bookkeeping.
func (s *Service) ExecuteBatch(ctx context.Context, providerID string, payloads []providers.InvokePayload) ([]providers.InvokeResult, error) {
	provider, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provider.Timeout)
	defer cancel()

	started := time.Now()
	results, err := provider.Adapter.InvokeBatch(attemptCtx, payloads)
	completed := time.Now()

	rec := models.AttemptRecord{
		ID:          uuid.New(),
		ProviderID:  provider.ID,
		StartedAt:   started,
		CompletedAt: completed,
		Latency:     completed.Sub(started),
	}
	switch {
	case err == nil:
		rec.Outcome = models.AttemptSuccess
	case providers.IsRejection(err):
		rec.Outcome = models.AttemptRejected
		rec.ErrorDetail = err.Error()
	case errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded:
		rec.Outcome = models.AttemptTimeout
		rec.ErrorDetail = err.Error()
	default:
		rec.Outcome = models.AttemptError
		rec.ErrorDetail = err.Error()
	}

	s.registry.ReportOutcome(provider.ID, rec)
	if s.outcomes != nil {
		s.outcomes.RecordOutcome(provider.ID)
	}
	observability.RecordAttempt(provider.ID, string(rec.Outcome), rec.Latency)

	if err != nil {
		s.logger.Warn("batch call failed",
			zap.String("provider", provider.ID),
			zap.Int("members", len(payloads)),
			zap.String("outcome", string(rec.Outcome)),
			zap.Error(err))
		return nil, err
	}
	return results, nil
}

// buildPayload maps a request onto the provider-agnostic invocation body.
func buildPayload(req *models.Request, provider *providers.Provider) providers.InvokePayload {
	payload := providers.InvokePayload{
		Content:   req.Content,
		TaskType:  string(req.TaskType),
		MaxTokens: provider.Capabilities.MaxTokens,
	}
	if req.Context != nil {
		payload.Code = req.Context.Code
		payload.Language = req.Context.Language
	}
	return payload
}
