package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
providers:
  - id: local
    kind: local-inference
    priority: 1
    base_url: http://localhost:8000
    timeout_ms: 5000
    cost_multiplier: 0.1
    supports_batching: true
    max_batch_size: 8
    max_batch_wait_ms: 50
    languages: [go, python]
  - id: hosted
    kind: hosted-api
    priority: 2
    base_url: https://api.example.com
    api_key_env: HOSTED_KEY

default_tier: standard

tiers:
  economy:
    allowed_providers: [local]
    cost_multiplier: 0.5
  standard:
    max_latency_ms: 30000
    allowed_providers: [local, hosted]

routing:
  task:
    completion: [local, hosted]
  language:
    go: [local]
    other: [hosted]
  size:
    large: [hosted]
`

func TestParseOrchestratorConfig(t *testing.T) {
	cfg, err := ParseOrchestratorConfig([]byte(validYAML))
	require.NoError(t, err)

	t.Run("providers parsed", func(t *testing.T) {
		require.Len(t, cfg.Providers, 2)
		local := cfg.Provider("local")
		require.NotNil(t, local)
		assert.Equal(t, 5*time.Second, local.Timeout())
		assert.Equal(t, 50*time.Millisecond, local.MaxBatchWait())
		assert.True(t, local.IsEnabled())
		assert.True(t, local.SupportsBatching)
	})

	t.Run("defaults applied", func(t *testing.T) {
		hosted := cfg.Provider("hosted")
		require.NotNil(t, hosted)
		assert.Equal(t, 30*time.Second, hosted.Timeout())
		assert.Equal(t, 1.0, hosted.CostMultiplier)

		assert.Equal(t, 20, cfg.Balancer.MinRequestCount)
		assert.Equal(t, 2.0, cfg.Balancer.PenaltyFactor)
		assert.Equal(t, 0.1, cfg.Balancer.ExplorationFraction)
		assert.Equal(t, 10*time.Second, cfg.Balancer.RecomputeInterval())
		assert.Equal(t, 3, cfg.Failover.MaxFallbackAttempts)
		assert.Equal(t, 60*time.Second, cfg.HealthProbe.Interval())
		assert.Equal(t, 10*time.Second, cfg.HealthProbe.Timeout())
		assert.Equal(t, 3, cfg.HealthProbe.FailureThreshold)
		assert.Equal(t, 4096, cfg.Tracker.RingSize)
	})

	t.Run("tier multipliers", func(t *testing.T) {
		economy := cfg.Tiers["economy"]
		assert.Equal(t, 0.5, economy.Multiplier())
		standard := cfg.Tiers["standard"]
		assert.Equal(t, 1.0, standard.Multiplier())
		assert.Equal(t, 30*time.Second, standard.MaxLatency())
	})

	t.Run("unknown provider lookup", func(t *testing.T) {
		assert.Nil(t, cfg.Provider("missing"))
	})
}

func TestParseOrchestratorConfig_Invalid(t *testing.T) {
	t.Run("no providers", func(t *testing.T) {
		_, err := ParseOrchestratorConfig([]byte("providers: []\ntiers:\n  standard:\n    allowed_providers: [x]\n"))
		assert.Error(t, err)
	})

	t.Run("duplicate provider id", func(t *testing.T) {
		yaml := `
providers:
  - id: local
    kind: local-inference
  - id: local
    kind: hosted-api
default_tier: standard
tiers:
  standard:
    allowed_providers: [local]
`
		_, err := ParseOrchestratorConfig([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate provider id")
	})

	t.Run("tier references unknown provider", func(t *testing.T) {
		yaml := `
providers:
  - id: local
    kind: local-inference
default_tier: standard
tiers:
  standard:
    allowed_providers: [missing]
`
		_, err := ParseOrchestratorConfig([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("routing table references unknown provider", func(t *testing.T) {
		yaml := `
providers:
  - id: local
    kind: local-inference
default_tier: standard
tiers:
  standard:
    allowed_providers: [local]
routing:
  task:
    completion: [ghost]
`
		_, err := ParseOrchestratorConfig([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("missing default tier", func(t *testing.T) {
		yaml := `
providers:
  - id: local
    kind: local-inference
default_tier: premium
tiers:
  standard:
    allowed_providers: [local]
`
		_, err := ParseOrchestratorConfig([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default tier")
	})

	t.Run("batching without max size", func(t *testing.T) {
		yaml := `
providers:
  - id: local
    kind: local-inference
    supports_batching: true
default_tier: standard
tiers:
  standard:
    allowed_providers: [local]
`
		_, err := ParseOrchestratorConfig([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_batch_size")
	})

	t.Run("invalid kind", func(t *testing.T) {
		yaml := `
providers:
  - id: local
    kind: mainframe
default_tier: standard
tiers:
  standard:
    allowed_providers: [local]
`
		_, err := ParseOrchestratorConfig([]byte(yaml))
		assert.Error(t, err)
	})
}

func TestProviderConfig_ResolveAPIKey(t *testing.T) {
	t.Run("env indirection wins", func(t *testing.T) {
		t.Setenv("TEST_PROVIDER_KEY", "from-env")
		p := ProviderConfig{APIKey: "inline", APIKeyEnv: "TEST_PROVIDER_KEY"}
		assert.Equal(t, "from-env", p.ResolveAPIKey())
	})

	t.Run("falls back to inline key", func(t *testing.T) {
		p := ProviderConfig{APIKey: "inline", APIKeyEnv: "UNSET_PROVIDER_KEY"}
		assert.Equal(t, "inline", p.ResolveAPIKey())
	})
}

func TestProviderConfig_Enabled(t *testing.T) {
	enabled := true
	disabled := false

	assert.True(t, (&ProviderConfig{}).IsEnabled())
	assert.True(t, (&ProviderConfig{Enabled: &enabled}).IsEnabled())
	assert.False(t, (&ProviderConfig{Enabled: &disabled}).IsEnabled())
}
