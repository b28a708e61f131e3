package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// OrchestratorConfig holds the routing, batching, balancing, failover and
// health-probe configuration loaded from the orchestrator YAML file.
type OrchestratorConfig struct {
	Providers   []ProviderConfig      `yaml:"providers" validate:"required,min=1,dive"`
	Tiers       map[string]TierConfig `yaml:"tiers" validate:"required,min=1"`
	DefaultTier string                `yaml:"default_tier"`
	Routing     RoutingTables         `yaml:"routing"`
	Balancer    BalancerConfig        `yaml:"balancer"`
	Failover    FailoverConfig        `yaml:"failover"`
	HealthProbe HealthProbeConfig     `yaml:"health_probe"`
	Tracker     TrackerConfig         `yaml:"tracker"`
}

// ProviderConfig describes one configured backend endpoint.
type ProviderConfig struct {
	ID               string   `yaml:"id" validate:"required"`
	Kind             string   `yaml:"kind" validate:"required,oneof=local-inference hosted-api gateway"`
	Priority         int      `yaml:"priority"`
	Enabled          *bool    `yaml:"enabled"`
	BaseURL          string   `yaml:"base_url"`
	APIKey           string   `yaml:"api_key"`
	APIKeyEnv        string   `yaml:"api_key_env"`
	TimeoutMs        int      `yaml:"timeout_ms" validate:"omitempty,gt=0"`
	RateLimitPerMin  int      `yaml:"rate_limit_per_min"`
	CostMultiplier   float64  `yaml:"cost_multiplier"`
	SupportsBatching bool     `yaml:"supports_batching"`
	SupportsStream   bool     `yaml:"supports_streaming"`
	MaxTokens        int      `yaml:"max_tokens"`
	Languages        []string `yaml:"languages"`
	MaxBatchSize     int      `yaml:"max_batch_size"`
	MaxBatchWaitMs   int      `yaml:"max_batch_wait_ms"`
}

// Timeout returns the per-request timeout for this provider.
func (p *ProviderConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// MaxBatchWait returns the batching window wait budget for this provider.
func (p *ProviderConfig) MaxBatchWait() time.Duration {
	if p.MaxBatchWaitMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(p.MaxBatchWaitMs) * time.Millisecond
}

// IsEnabled returns whether the provider participates in routing.
// Providers are enabled unless explicitly disabled.
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ResolveAPIKey returns the configured API key, preferring the env var
// indirection when api_key_env is set.
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v
		}
	}
	return p.APIKey
}

// TierConfig is a named SLA constraint set selected per request.
type TierConfig struct {
	MinAccuracy      float64  `yaml:"min_accuracy"` // advisory, not enforced
	MaxLatencyMs     int      `yaml:"max_latency_ms"`
	AllowedProviders []string `yaml:"allowed_providers" validate:"required,min=1"`
	CostMultiplier   float64  `yaml:"cost_multiplier"`
}

// MaxLatency returns the tier's advisory latency bound.
func (t *TierConfig) MaxLatency() time.Duration {
	return time.Duration(t.MaxLatencyMs) * time.Millisecond
}

// Multiplier returns the tier cost multiplier, defaulting to 1.0.
func (t *TierConfig) Multiplier() float64 {
	if t.CostMultiplier <= 0 {
		return 1.0
	}
	return t.CostMultiplier
}

// RoutingTables hold the static task/language/size routing lists.
// A table key maps to an ordered list of provider identifiers; the
// "other" key in the language table is the generic fallback.
type RoutingTables struct {
	Task     map[string][]string `yaml:"task"`
	Language map[string][]string `yaml:"language"`
	Size     map[string][]string `yaml:"size"`
}

// BalancerConfig holds dynamic-weight parameters.
type BalancerConfig struct {
	RecomputeIntervalMs int     `yaml:"recompute_interval_ms"`
	MinRequestCount     int     `yaml:"min_request_count"`
	PenaltyFactor       float64 `yaml:"penalty_factor"`
	ExplorationFraction float64 `yaml:"exploration_fraction" validate:"gte=0,lte=1"`
}

// RecomputeInterval returns the weight recompute interval.
func (b *BalancerConfig) RecomputeInterval() time.Duration {
	if b.RecomputeIntervalMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.RecomputeIntervalMs) * time.Millisecond
}

// FailoverConfig bounds the failover executor.
type FailoverConfig struct {
	MaxFallbackAttempts int `yaml:"max_fallback_attempts"`
}

// HealthProbeConfig holds out-of-band probe parameters.
type HealthProbeConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	TimeoutMs        int `yaml:"timeout_ms"`
	FailureThreshold int `yaml:"failure_threshold"`
}

// Interval returns the probe interval.
func (h *HealthProbeConfig) Interval() time.Duration {
	if h.IntervalMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(h.IntervalMs) * time.Millisecond
}

// Timeout returns the probe timeout.
func (h *HealthProbeConfig) Timeout() time.Duration {
	if h.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// TrackerConfig bounds attempt-record retention.
type TrackerConfig struct {
	RingSize int `yaml:"ring_size"`
}

// LoadOrchestratorConfig reads and validates the orchestrator YAML file.
func LoadOrchestratorConfig(path string) (*OrchestratorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseOrchestratorConfig(data)
}

// ParseOrchestratorConfig parses and validates orchestrator configuration bytes.
func ParseOrchestratorConfig(data []byte) (*OrchestratorConfig, error) {
	var cfg OrchestratorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse orchestrator config: %w", err)
	}
	applyOrchestratorDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints and cross-references.
// Every provider referenced by a tier or routing table must be configured;
// unknown references fail fast at load time.
func (c *OrchestratorConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid orchestrator config: %w", err)
	}

	known := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if known[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		known[p.ID] = true
		if p.SupportsBatching && p.MaxBatchSize <= 0 {
			return fmt.Errorf("provider %q supports batching but has no max_batch_size", p.ID)
		}
	}

	if _, ok := c.Tiers[c.DefaultTier]; !ok {
		return fmt.Errorf("default tier %q is not in the tier table", c.DefaultTier)
	}
	for name, tier := range c.Tiers {
		for _, id := range tier.AllowedProviders {
			if !known[id] {
				return fmt.Errorf("tier %q references unknown provider %q", name, id)
			}
		}
	}

	tables := map[string]map[string][]string{
		"task":     c.Routing.Task,
		"language": c.Routing.Language,
		"size":     c.Routing.Size,
	}
	for tableName, table := range tables {
		for key, ids := range table {
			for _, id := range ids {
				if !known[id] {
					return fmt.Errorf("%s routing table entry %q references unknown provider %q", tableName, key, id)
				}
			}
		}
	}

	return nil
}

// Provider returns the provider config with the given id, or nil.
func (c *OrchestratorConfig) Provider(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

func applyOrchestratorDefaults(cfg *OrchestratorConfig) {
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = "standard"
	}
	if cfg.Balancer.MinRequestCount <= 0 {
		cfg.Balancer.MinRequestCount = 20
	}
	if cfg.Balancer.PenaltyFactor <= 0 {
		cfg.Balancer.PenaltyFactor = 2.0
	}
	if cfg.Balancer.ExplorationFraction == 0 {
		cfg.Balancer.ExplorationFraction = 0.1
	}
	if cfg.Failover.MaxFallbackAttempts <= 0 {
		cfg.Failover.MaxFallbackAttempts = 3
	}
	if cfg.HealthProbe.FailureThreshold <= 0 {
		cfg.HealthProbe.FailureThreshold = 3
	}
	if cfg.Tracker.RingSize <= 0 {
		cfg.Tracker.RingSize = 4096
	}
	for i := range cfg.Providers {
		if cfg.Providers[i].CostMultiplier <= 0 {
			cfg.Providers[i].CostMultiplier = 1.0
		}
	}
}
