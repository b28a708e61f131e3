package providers

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/internal/observability"
	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services"
)

// DefaultSmoothingFactor is the EWMA alpha applied to rolling latency and
// error rate when none is configured.
const DefaultSmoothingFactor = 0.2

// DefaultFailureThreshold is the consecutive request-failure count that
// marks a provider unavailable when none is configured.
const DefaultFailureThreshold = 3

// RegistryConfig tunes health bookkeeping.
type RegistryConfig struct {
	// SmoothingFactor is the EWMA alpha for rolling latency/error rate
	SmoothingFactor float64

	// FailureThreshold is the consecutive failure count before a provider
	// is marked unavailable
	FailureThreshold int
}

// Registry is the single source of truth for configured providers and their
// live health. Health updates are serialized per provider; readers get
// value-copy snapshots and never block the update path.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	cfg     RegistryConfig
	logger  *zap.Logger
}

// entry pairs a provider with its health under a dedicated lock, giving
// single-writer-per-key update semantics.
type entry struct {
	mu       sync.Mutex
	provider Provider
	health   HealthState
}

// NewRegistry creates a new provider registry
func NewRegistry(cfg RegistryConfig, logger *zap.Logger) *Registry {
	if cfg.SmoothingFactor <= 0 || cfg.SmoothingFactor > 1 {
		cfg.SmoothingFactor = DefaultSmoothingFactor
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Registry{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  logger,
	}
}

// Register validates and adds a provider with initial health = healthy.
// Registration failures are configuration errors: the process should not
// start with an invalid provider set.
func (r *Registry) Register(p Provider) error {
	if p.ID == "" {
		return services.NewDomainError(services.ErrorTypeConfig, "provider identifier cannot be empty", nil)
	}
	if p.Timeout <= 0 {
		return services.NewDomainError(services.ErrorTypeConfig, "provider timeout must be positive", nil).
			WithDetail("provider_id", p.ID)
	}
	if p.Adapter == nil {
		return services.NewDomainError(services.ErrorTypeConfig, "provider adapter cannot be nil", nil).
			WithDetail("provider_id", p.ID)
	}
	if p.CostMultiplier <= 0 {
		p.CostMultiplier = 1.0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[p.ID]; exists {
		return services.NewDomainError(services.ErrorTypeConfig, "provider identifier already registered", nil).
			WithDetail("provider_id", p.ID)
	}

	r.entries[p.ID] = &entry{
		provider: p,
		health:   newHealthState(),
	}
	observability.SetProviderHealth(p.ID, healthGaugeValue(StatusHealthy))

	r.logger.Info("provider registered",
		zap.String("provider", p.ID),
		zap.String("kind", string(p.Kind)),
		zap.Int("priority", p.Priority))

	return nil
}

// Get retrieves a snapshot of the provider with the given id.
func (r *Registry) Get(id string) (*Provider, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	p := e.provider
	e.mu.Unlock()
	return &p, nil
}

// Health retrieves a snapshot of the provider's health state.
func (r *Registry) Health(id string) (HealthState, error) {
	e, err := r.entry(id)
	if err != nil {
		return HealthState{}, err
	}
	e.mu.Lock()
	h := e.health
	e.mu.Unlock()
	return h, nil
}

// List returns enabled providers matching all filters, in ascending priority
// order with ties broken by identifier for determinism.
func (r *Registry) List(filters ...Filter) []*Provider {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []*Provider
	for _, e := range entries {
		e.mu.Lock()
		p := e.provider
		h := e.health
		e.mu.Unlock()

		if !p.Enabled {
			continue
		}
		match := true
		for _, f := range filters {
			if !f(&p, h) {
				match = false
				break
			}
		}
		if match {
			cp := p
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns all registered provider identifiers (enabled or not), sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ReportOutcome folds one attempt result into the provider's rolling health.
// Unknown providers are logged and ignored; an attempt against a provider
// that was concurrently disabled is not an error.
func (r *Registry) ReportOutcome(id string, rec models.AttemptRecord) {
	e, err := r.entry(id)
	if err != nil {
		r.logger.Warn("outcome reported for unknown provider", zap.String("provider", id))
		return
	}

	e.mu.Lock()
	e.health.observe(rec.Succeeded(), rec.Latency, rec.CompletedAt, r.cfg.SmoothingFactor, r.cfg.FailureThreshold)
	status := e.health.Status
	failures := e.health.ConsecutiveFailures
	e.mu.Unlock()

	observability.SetProviderHealth(id, healthGaugeValue(status))

	if status == StatusUnavailable {
		r.logger.Warn("provider marked unavailable after consecutive failures",
			zap.String("provider", id),
			zap.Int("consecutive_failures", failures))
	}
}

// MarkUnavailable forces the provider into the unavailable state.
// Used by the health prober after repeated probe failures.
func (r *Registry) MarkUnavailable(id string) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.health.markUnavailable(time.Now())
	e.mu.Unlock()
	observability.SetProviderHealth(id, healthGaugeValue(StatusUnavailable))
	r.logger.Warn("provider marked unavailable", zap.String("provider", id))
	return nil
}

// MarkHealthy restores the provider to the healthy state.
func (r *Registry) MarkHealthy(id string) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.health.markHealthy(time.Now())
	e.mu.Unlock()
	observability.SetProviderHealth(id, healthGaugeValue(StatusHealthy))
	r.logger.Info("provider marked healthy", zap.String("provider", id))
	return nil
}

// SetEnabled flips the enabled flag. Providers are never deleted at runtime,
// only disabled.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.provider.Enabled = enabled
	e.mu.Unlock()
	r.logger.Info("provider enabled flag changed",
		zap.String("provider", id), zap.Bool("enabled", enabled))
	return nil
}

// StatusSnapshot pairs a provider snapshot with its health for reporting.
type StatusSnapshot struct {
	Provider Provider
	Health   HealthState
}

// Snapshot returns a point-in-time view of every registered provider,
// sorted by priority then id.
func (r *Registry) Snapshot() []StatusSnapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]StatusSnapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, StatusSnapshot{Provider: e.provider, Health: e.health})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider.Priority != out[j].Provider.Priority {
			return out[i].Provider.Priority < out[j].Provider.Priority
		}
		return out[i].Provider.ID < out[j].Provider.ID
	})
	return out
}

// healthGaugeValue maps a health status onto the exported gauge scale:
// 2 healthy, 1 degraded, 0 unavailable.
func healthGaugeValue(s Status) float64 {
	switch s {
	case StatusHealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

func (r *Registry) entry(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[id]
	if !exists {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "provider not found", nil).
			WithDetail("provider_id", id)
	}
	return e, nil
}
