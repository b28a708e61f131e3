// Package tracker records per-attempt cost and latency observations and
// aggregates them into per-provider summaries for the stats surface.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/models"
)

// DefaultRingSize bounds in-memory attempt retention when none is configured.
const DefaultRingSize = 4096

// Archive persists attempt records beyond the in-memory window.
// Archiving is best effort: a failing archive never blocks or fails the
// request path.
type Archive interface {
	SaveAttempts(ctx context.Context, records []models.AttemptRecord) error
}

// Config holds tracker parameters.
type Config struct {
	// RingSize bounds the in-memory attempt record buffer
	RingSize int
}

// Service is the cost/SLA tracker. Attempt records land in a fixed-size ring
// buffer; aggregation walks the buffer under a read lock.
type Service struct {
	cfg     Config
	archive Archive
	logger  *zap.Logger

	mu       sync.RWMutex
	ring     []models.AttemptRecord
	next     int
	filled   bool
	outcomes map[models.RequestOutcome]int64
}

// New creates a new tracker service. archive may be nil.
func New(cfg Config, archive Archive, logger *zap.Logger) *Service {
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	return &Service{
		cfg:      cfg,
		archive:  archive,
		logger:   logger,
		ring:     make([]models.AttemptRecord, cfg.RingSize),
		outcomes: make(map[models.RequestOutcome]int64),
	}
}

// Record stores the attempt history of a completed request and its terminal
// outcome. Every attempt is recorded, including the failed attempts of a
// request that eventually succeeded elsewhere.
func (s *Service) Record(ctx context.Context, req *models.Request, attempts []models.AttemptRecord, outcome models.RequestOutcome) {
	s.mu.Lock()
	for _, rec := range attempts {
		s.ring[s.next] = rec
		s.next++
		if s.next == len(s.ring) {
			s.next = 0
			s.filled = true
		}
	}
	s.outcomes[outcome]++
	s.mu.Unlock()

	if s.archive != nil && len(attempts) > 0 {
		if err := s.archive.SaveAttempts(ctx, attempts); err != nil {
			s.logger.Warn("attempt archive write failed",
				zap.String("request_id", req.ID.String()),
				zap.Error(err))
		}
	}
}

// ProviderStats is the aggregated view of one provider over a window.
type ProviderStats struct {
	ProviderID     string  `json:"provider_id"`
	Attempts       int64   `json:"attempts"`
	Successes      int64   `json:"successes"`
	Failures       int64   `json:"failures"`
	ErrorRate      float64 `json:"error_rate"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	EstimatedSpend float64 `json:"estimated_spend"`
}

// Summary is the aggregate over all providers in a window.
type Summary struct {
	Window        time.Duration                   `json:"-"`
	WindowSeconds float64                         `json:"window_seconds"`
	TotalAttempts int64                           `json:"total_attempts"`
	TotalSpend    float64                         `json:"total_spend"`
	Outcomes      map[models.RequestOutcome]int64 `json:"outcomes"`
	Providers     map[string]*ProviderStats       `json:"providers"`
}

// Aggregate summarizes the retained attempts whose completion time falls
// within the trailing window. A zero window covers the whole buffer.
func (s *Service) Aggregate(window time.Duration) *Summary {
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	out := &Summary{
		Window:        window,
		WindowSeconds: window.Seconds(),
		Outcomes:      make(map[models.RequestOutcome]int64),
		Providers:     make(map[string]*ProviderStats),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := s.next
	if s.filled {
		limit = len(s.ring)
	}
	var latencySums = make(map[string]time.Duration)
	for i := 0; i < limit; i++ {
		rec := s.ring[i]
		if !cutoff.IsZero() && rec.CompletedAt.Before(cutoff) {
			continue
		}

		ps, ok := out.Providers[rec.ProviderID]
		if !ok {
			ps = &ProviderStats{ProviderID: rec.ProviderID}
			out.Providers[rec.ProviderID] = ps
		}
		ps.Attempts++
		if rec.Succeeded() {
			ps.Successes++
			ps.EstimatedSpend += rec.EstimatedCost
		} else {
			ps.Failures++
		}
		latencySums[rec.ProviderID] += rec.Latency
		out.TotalAttempts++
	}

	for id, ps := range out.Providers {
		if ps.Attempts > 0 {
			ps.ErrorRate = float64(ps.Failures) / float64(ps.Attempts)
			ps.AvgLatencyMs = float64(latencySums[id].Milliseconds()) / float64(ps.Attempts)
		}
		out.TotalSpend += ps.EstimatedSpend
	}
	for outcome, n := range s.outcomes {
		out.Outcomes[outcome] = n
	}

	return out
}

// Spend returns the total estimated spend across the retained window.
// Only successful attempts incur cost.
func (s *Service) Spend() float64 {
	return s.Aggregate(0).TotalSpend
}

// RetainedCount returns how many attempt records are currently buffered.
func (s *Service) RetainedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filled {
		return len(s.ring)
	}
	return s.next
}
