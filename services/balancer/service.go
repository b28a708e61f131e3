// Package balancer maintains the dynamic routing weight for each provider.
// The weight feeds the Router's secondary sort key: among providers with
// equal configured priority, better recent performers are preferred.
package balancer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/services/providers"
)

// NeutralWeight is assigned to providers with no observed requests so they
// are not starved before producing any metrics.
const NeutralWeight = 1.0

// Config holds load-balancer parameters.
type Config struct {
	// RecomputeInterval is the periodic weight refresh interval
	RecomputeInterval time.Duration

	// MinRequestCount triggers an early recompute once any provider has
	// accumulated this many outcomes since the last refresh
	MinRequestCount int

	// PenaltyFactor multiplies the rolling error rate in the weight formula
	PenaltyFactor float64

	// ExplorationFraction is the share of routing decisions deliberately
	// diverted to non-optimal candidates to keep their metrics fresh
	ExplorationFraction float64
}

// DefaultConfig returns the standard balancer parameters.
func DefaultConfig() Config {
	return Config{
		RecomputeInterval:   10 * time.Second,
		MinRequestCount:     20,
		PenaltyFactor:       2.0,
		ExplorationFraction: 0.1,
	}
}

// Service recomputes and exposes per-provider weights.
// Weights are refreshed on an interval or after a minimum outcome count,
// whichever triggers first; reads always see the last committed table.
type Service struct {
	registry *providers.Registry
	cfg      Config
	logger   *zap.Logger

	mu      sync.RWMutex
	weights map[string]float64
	pending map[string]int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a new balancer service.
func New(registry *providers.Registry, cfg Config, logger *zap.Logger) *Service {
	return newWithRand(registry, cfg, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// newWithRand allows deterministic exploration in tests.
func newWithRand(registry *providers.Registry, cfg Config, logger *zap.Logger, rng *rand.Rand) *Service {
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = 10 * time.Second
	}
	if cfg.MinRequestCount <= 0 {
		cfg.MinRequestCount = 20
	}
	if cfg.PenaltyFactor <= 0 {
		cfg.PenaltyFactor = 2.0
	}
	return &Service{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		weights:  make(map[string]float64),
		pending:  make(map[string]int),
		rng:      rng,
	}
}

// Weight returns the current dynamic weight for a provider.
// Providers without a committed weight get the neutral default.
func (s *Service) Weight(id string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.weights[id]; ok {
		return w
	}
	return NeutralWeight
}

// RecordOutcome notes that an attempt against the provider completed.
// Once any provider accumulates MinRequestCount outcomes since the last
// refresh, the whole table is recomputed early.
func (s *Service) RecordOutcome(id string) {
	s.mu.Lock()
	s.pending[id]++
	trigger := s.pending[id] >= s.cfg.MinRequestCount
	s.mu.Unlock()

	if trigger {
		s.Recompute()
	}
}

// Recompute rebuilds the weight table from registry health snapshots.
// weight = 1 / (latency_ms * (1 + error_rate * penalty_factor)); providers
// with zero observations keep the neutral weight.
func (s *Service) Recompute() {
	snapshots := s.registry.Snapshot()

	next := make(map[string]float64, len(snapshots))
	for _, snap := range snapshots {
		h := snap.Health
		if h.Observations == 0 {
			next[snap.Provider.ID] = NeutralWeight
			continue
		}
		latencyMs := h.AvgLatencyMs
		if latencyMs < 1 {
			latencyMs = 1
		}
		next[snap.Provider.ID] = 1 / (latencyMs * (1 + h.ErrorRate*s.cfg.PenaltyFactor))
	}

	s.mu.Lock()
	s.weights = next
	s.pending = make(map[string]int)
	s.mu.Unlock()

	s.logger.Debug("balancer weights recomputed", zap.Int("providers", len(next)))
}

// ExplorePick decides which of n ordered candidates a request should lead
// with. It returns 0 (the optimal head) most of the time; for the configured
// exploration fraction of decisions it returns a random non-head index so
// lower-ranked providers keep producing fresh metrics and their recovery is
// noticed.
func (s *Service) ExplorePick(n int) int {
	if n <= 1 || s.cfg.ExplorationFraction <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.rng.Float64() >= s.cfg.ExplorationFraction {
		return 0
	}
	return 1 + s.rng.Intn(n-1)
}

// Run refreshes weights on the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RecomputeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("balancer recompute loop stopped")
			return
		case <-ticker.C:
			s.Recompute()
		}
	}
}
