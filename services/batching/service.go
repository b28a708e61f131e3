// Package batching coalesces compatible requests headed for the same
// provider into one backend call. Windows close on size or on a wait timer,
// whichever comes first; each member receives its own full response.
package batching

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/internal/observability"
	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services"
	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/services/routing"
)

// DispatchFunc sends one coalesced call to a provider and returns per-member
// results in payload order. Implemented by the failover executor.
type DispatchFunc func(ctx context.Context, providerID string, payloads []providers.InvokePayload) ([]providers.InvokeResult, error)

// windowKey identifies a coalescing window. Only requests with the same
// provider, task type and language merge; mixing tasks or languages in one
// backend call degrades all of them.
type windowKey struct {
	ProviderID string
	TaskType   models.TaskType
	Language   string
}

type memberResult struct {
	result    *providers.InvokeResult
	batchSize int
	latency   time.Duration
	err       error
}

type member struct {
	req      *models.Request
	cand     routing.Candidate
	resultCh chan memberResult
}

type window struct {
	key        windowKey
	members    []*member
	timer      *time.Timer
	dispatched bool
}

// Service is the request batcher.
type Service struct {
	registry *providers.Registry
	dispatch DispatchFunc
	logger   *zap.Logger

	mu      sync.Mutex
	windows map[windowKey]*window
}

// New creates a new batching service.
func New(registry *providers.Registry, dispatch DispatchFunc, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		dispatch: dispatch,
		logger:   logger,
		windows:  make(map[windowKey]*window),
	}
}

// Submit enqueues a batchable request for the given provider candidate and
// blocks until the batch containing it completes or ctx is cancelled.
// A batch-level failure surfaces as an error to every member; the caller
// decides whether to retry members individually.
func (s *Service) Submit(ctx context.Context, req *models.Request, cand routing.Candidate) (*models.Response, error) {
	provider, err := s.registry.Get(cand.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Capabilities.SupportsBatching || provider.MaxBatchSize <= 1 {
		return nil, services.NewDomainError(services.ErrorTypeInternal, "provider does not support batching", nil).
			WithDetail("provider_id", provider.ID)
	}

	// A window that outlives the provider timeout would time out its own
	// members before dispatching.
	wait := provider.MaxBatchWait
	if wait >= provider.Timeout {
		wait = provider.Timeout / 2
	}

	m := &member{
		req:      req,
		cand:     cand,
		resultCh: make(chan memberResult, 1),
	}

	key := windowKey{
		ProviderID: provider.ID,
		TaskType:   req.TaskType,
		Language:   req.Language(),
	}

	s.mu.Lock()
	w, ok := s.windows[key]
	if !ok {
		w = &window{key: key}
		w.timer = time.AfterFunc(wait, func() { s.closeWindow(key, w) })
		s.windows[key] = w
	}
	w.members = append(w.members, m)
	full := len(w.members) >= provider.MaxBatchSize
	if full {
		w.dispatched = true
		delete(s.windows, key)
		w.timer.Stop()
	}
	s.mu.Unlock()

	if full {
		go s.dispatchWindow(w)
	}

	select {
	case <-ctx.Done():
		// The window still dispatches with this member's payload; the slot
		// result is simply dropped on arrival.
		return nil, services.NewDomainError(services.ErrorTypeCancelled, "request cancelled while waiting for batch", ctx.Err())
	case res := <-m.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return &models.Response{
			RequestID:   req.ID,
			ProviderID:  provider.ID,
			Content:     res.result.Content,
			TokensUsed:  res.result.TokensUsed,
			Latency:     res.latency,
			Cost:        cand.EstimatedCost,
			Attempts:    1,
			Batched:     true,
			CompletedAt: time.Now(),
		}, nil
	}
}

// closeWindow is the timer path: dispatch whatever accumulated.
func (s *Service) closeWindow(key windowKey, w *window) {
	s.mu.Lock()
	if w.dispatched {
		s.mu.Unlock()
		return
	}
	w.dispatched = true
	delete(s.windows, key)
	s.mu.Unlock()

	s.dispatchWindow(w)
}

// dispatchWindow sends the coalesced call and fans results back out.
// Results map to members in FIFO order; every member gets its complete
// response, never a shared or truncated one.
func (s *Service) dispatchWindow(w *window) {
	payloads := make([]providers.InvokePayload, len(w.members))
	for i, m := range w.members {
		payloads[i] = providers.InvokePayload{
			Content:  m.req.Content,
			TaskType: string(m.req.TaskType),
		}
		if m.req.Context != nil {
			payloads[i].Code = m.req.Context.Code
			payloads[i].Language = m.req.Context.Language
		}
	}

	observability.ObserveBatchSize(w.key.ProviderID, len(payloads))
	s.logger.Debug("dispatching batch",
		zap.String("provider", w.key.ProviderID),
		zap.String("task_type", string(w.key.TaskType)),
		zap.Int("members", len(payloads)))

	started := time.Now()
	results, err := s.dispatch(context.Background(), w.key.ProviderID, payloads)
	elapsed := time.Since(started)

	if err == nil && len(results) != len(w.members) {
		err = services.NewDomainError(services.ErrorTypeProvider, "batch result count does not match member count", nil).
			WithDetail("provider_id", w.key.ProviderID).
			WithDetail("members", len(w.members)).
			WithDetail("results", len(results))
	}

	for i, m := range w.members {
		if err != nil {
			m.resultCh <- memberResult{err: err, batchSize: len(w.members)}
			continue
		}
		r := results[i]
		m.resultCh <- memberResult{
			result:    &r,
			batchSize: len(w.members),
			latency:   elapsed,
		}
	}
}

// PendingWindows returns the number of open coalescing windows.
func (s *Service) PendingWindows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
