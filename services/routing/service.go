// Package routing produces a deterministic, explainable ordering of
// candidate providers for each request from static tables (tier, task,
// language, size) and live registry state.
package routing

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services"
	"github.com/openassist/llm-orchestrator/services/providers"
)

// Tier is a named SLA constraint set selected per request.
// Attributes are immutable once loaded.
type Tier struct {
	Name             string
	MinAccuracy      float64 // advisory, not enforced by the orchestrator
	MaxLatency       time.Duration
	AllowedProviders []string
	CostMultiplier   float64
}

// Config holds the routing tables.
// Routing table entries reference provider identifiers and are validated
// against the registry at load time; a table with no entry for a key places
// no restriction on the candidate set, except the language table where the
// "other" key acts as the generic fallback.
type Config struct {
	Tiers         map[string]Tier
	DefaultTier   string
	TaskTable     map[models.TaskType][]string
	LanguageTable map[string][]string
	SizeTable     map[models.SizeClass][]string
}

// LanguageFallbackKey is the language-table key consulted when no
// language-specific entry exists.
const LanguageFallbackKey = "other"

// WeightSource exposes the balancer state the router reads per request.
type WeightSource interface {
	// Weight returns the current dynamic weight for a provider
	Weight(id string) float64

	// ExplorePick selects the leading candidate index among n ordered
	// candidates, diverting a configured fraction to non-optimal picks
	ExplorePick(n int) int
}

// Candidate is one entry of the ordered routing decision.
type Candidate struct {
	ProviderID    string
	Priority      int
	Weight        float64
	EstimatedCost float64
}

// Service routes requests to an ordered provider candidate list.
type Service struct {
	cfg      Config
	registry *providers.Registry
	weights  WeightSource
	logger   *zap.Logger
}

// New creates a new routing service.
func New(cfg Config, registry *providers.Registry, weights WeightSource, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		registry: registry,
		weights:  weights,
		logger:   logger,
	}
}

// ResolveTier maps a requested tier name to its configuration.
// An unknown name falls back to the configured default tier with a warning;
// only a missing default is a hard failure.
func (s *Service) ResolveTier(name string) (Tier, error) {
	if name == "" {
		name = s.cfg.DefaultTier
	}
	if tier, ok := s.cfg.Tiers[name]; ok {
		return tier, nil
	}

	s.logger.Warn("unknown SLA tier requested, falling back to default",
		zap.String("requested", name),
		zap.String("default", s.cfg.DefaultTier))

	if tier, ok := s.cfg.Tiers[s.cfg.DefaultTier]; ok {
		return tier, nil
	}
	return Tier{}, services.NewDomainError(services.ErrorTypeTier, "requested SLA tier is not configured", nil).
		WithDetail("tier", name)
}

// Route produces the ordered candidate list for a request.
// The list is never empty on success and never contains a provider whose
// health is unavailable.
func (s *Service) Route(ctx context.Context, req *models.Request) ([]Candidate, error) {
	tier, err := s.ResolveTier(req.Tier)
	if err != nil {
		return nil, err
	}

	restrictions := s.collectRestrictions(req, tier)

	lang := req.Language()
	eligible := s.registry.List(providers.Available(), providers.WithLanguage(lang))

	var candidates []Candidate
	for _, p := range eligible {
		if !inAllSets(p.ID, restrictions) {
			continue
		}
		candidates = append(candidates, Candidate{
			ProviderID:    p.ID,
			Priority:      p.Priority,
			Weight:        s.weights.Weight(p.ID),
			EstimatedCost: p.CostMultiplier * tier.CostMultiplier,
		})
	}

	if len(candidates) == 0 {
		return nil, services.NewDomainError(services.ErrorTypeEligibility, "routing filters produced an empty candidate set", nil).
			WithDetail("tier", tier.Name).
			WithDetail("task_type", string(req.TaskType)).
			WithDetail("language", lang).
			WithDetail("size_class", string(req.SizeClass))
	}

	// Primary: configured priority ascending. Secondary: dynamic weight
	// descending. Tertiary: identifier, for deterministic test output.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		if candidates[i].Weight != candidates[j].Weight {
			return candidates[i].Weight > candidates[j].Weight
		}
		return candidates[i].ProviderID < candidates[j].ProviderID
	})

	if req.BudgetCeiling > 0 {
		within := candidates[:0]
		for _, c := range candidates {
			if c.EstimatedCost <= req.BudgetCeiling {
				within = append(within, c)
			}
		}
		candidates = within
		if len(candidates) == 0 {
			return nil, services.NewDomainError(services.ErrorTypeBudget, "no provider fits the remaining budget", nil).
				WithDetail("budget_ceiling", req.BudgetCeiling).
				WithDetail("tier", tier.Name)
		}
	}

	// Exploration: a minority of requests lead with a non-optimal candidate
	// so lower-ranked providers keep producing metrics.
	if pick := s.weights.ExplorePick(len(candidates)); pick > 0 {
		picked := candidates[pick]
		rest := append([]Candidate{}, candidates[:pick]...)
		rest = append(rest, candidates[pick+1:]...)
		candidates = append([]Candidate{picked}, rest...)
		s.logger.Debug("exploration pick promoted",
			zap.String("provider", picked.ProviderID),
			zap.Int("from_rank", pick))
	}

	return candidates, nil
}

// collectRestrictions gathers the allowed-provider sets that apply to the
// request. Filtering is set intersection across all collected sets.
func (s *Service) collectRestrictions(req *models.Request, tier Tier) []map[string]bool {
	restrictions := []map[string]bool{toSet(tier.AllowedProviders)}

	if ids, ok := s.cfg.TaskTable[req.TaskType]; ok {
		restrictions = append(restrictions, toSet(ids))
	}

	// Language-specific entry takes precedence over the generic fallback.
	lang := req.Language()
	if ids, ok := s.cfg.LanguageTable[lang]; ok && lang != "" {
		restrictions = append(restrictions, toSet(ids))
	} else if ids, ok := s.cfg.LanguageTable[LanguageFallbackKey]; ok {
		restrictions = append(restrictions, toSet(ids))
	}

	if ids, ok := s.cfg.SizeTable[req.SizeClass]; ok {
		restrictions = append(restrictions, toSet(ids))
	}

	return restrictions
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func inAllSets(id string, sets []map[string]bool) bool {
	for _, set := range sets {
		if !set[id] {
			return false
		}
	}
	return true
}
