package failover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/services"
	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/services/routing"
)

type countingSink struct {
	outcomes []string
}

func (c *countingSink) RecordOutcome(providerID string) {
	c.outcomes = append(c.outcomes, providerID)
}

type fixture struct {
	registry *providers.Registry
	adapters map[string]*providers.MockAdapter
	sink     *countingSink
	service  *Service
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	registry := providers.NewRegistry(providers.RegistryConfig{}, logger)
	adapters := make(map[string]*providers.MockAdapter)

	for i, id := range ids {
		adapter := providers.NewMockAdapter()
		adapters[id] = adapter
		require.NoError(t, registry.Register(providers.Provider{
			ID:             id,
			Kind:           providers.KindLocalInference,
			Priority:       i + 1,
			Enabled:        true,
			Timeout:        2 * time.Second,
			CostMultiplier: 1.0,
			Adapter:        adapter,
		}))
	}

	sink := &countingSink{}
	return &fixture{
		registry: registry,
		adapters: adapters,
		sink:     sink,
		service:  New(registry, sink, Config{MaxFallbackAttempts: 3}, logger),
	}
}

func candidates(ids ...string) []routing.Candidate {
	out := make([]routing.Candidate, len(ids))
	for i, id := range ids {
		out[i] = routing.Candidate{ProviderID: id, Priority: i + 1, Weight: 1.0, EstimatedCost: 1.0}
	}
	return out
}

func TestService_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("first candidate succeeds", func(t *testing.T) {
		f := newFixture(t, "alpha", "beta")
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		resp, attempts, err := f.service.Execute(ctx, req, candidates("alpha", "beta"))
		require.NoError(t, err)
		assert.Equal(t, "alpha", resp.ProviderID)
		assert.Equal(t, "mock: hello", resp.Content)
		assert.Equal(t, 1, resp.Attempts)
		require.Len(t, attempts, 1)
		assert.Equal(t, models.AttemptSuccess, attempts[0].Outcome)
		assert.Equal(t, 0, f.adapters["beta"].Invocations(), "later candidates untouched")
	})

	t.Run("falls through failures to a success", func(t *testing.T) {
		f := newFixture(t, "alpha", "beta", "gamma")
		f.adapters["alpha"].FailNext = 1
		f.adapters["beta"].FailNext = 1
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		resp, attempts, err := f.service.Execute(ctx, req, candidates("alpha", "beta", "gamma"))
		require.NoError(t, err)
		assert.Equal(t, "gamma", resp.ProviderID)
		assert.Equal(t, 3, resp.Attempts)

		require.Len(t, attempts, 3)
		assert.Equal(t, models.AttemptError, attempts[0].Outcome)
		assert.Equal(t, "alpha", attempts[0].ProviderID)
		assert.Equal(t, models.AttemptError, attempts[1].Outcome)
		assert.Equal(t, models.AttemptSuccess, attempts[2].Outcome)

		// Every attempt fed the balancer
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, f.sink.outcomes)
	})

	t.Run("attempt cap yields exhausted error", func(t *testing.T) {
		f := newFixture(t, "a1", "a2", "a3", "a4")
		for _, a := range f.adapters {
			a.FailNext = 1
		}
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		_, attempts, err := f.service.Execute(ctx, req, candidates("a1", "a2", "a3", "a4"))
		require.Error(t, err)
		assert.True(t, services.IsExhaustedError(err))
		assert.Len(t, attempts, 3, "capped at MaxFallbackAttempts")
		assert.Equal(t, 0, f.adapters["a4"].Invocations())

		details := services.GetErrorDetails(err)
		assert.Equal(t, 3, details["candidates_tried"])
	})

	t.Run("rejections are classified", func(t *testing.T) {
		f := newFixture(t, "alpha", "beta")
		f.adapters["alpha"].FailNext = 1
		f.adapters["alpha"].FailWith = providers.NewProviderError("alpha", "OVERLOADED", "at capacity", 503, true, nil)
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		resp, attempts, err := f.service.Execute(ctx, req, candidates("alpha", "beta"))
		require.NoError(t, err)
		assert.Equal(t, "beta", resp.ProviderID)
		require.Len(t, attempts, 2)
		assert.Equal(t, models.AttemptRejected, attempts[0].Outcome)
		assert.Equal(t, 0.0, attempts[0].EstimatedCost, "rejected attempts incur no cost")
	})

	t.Run("timeouts are classified", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		registry := providers.NewRegistry(providers.RegistryConfig{}, logger)
		adapter := providers.NewMockAdapter()
		adapter.Latency = 200 * time.Millisecond
		require.NoError(t, registry.Register(providers.Provider{
			ID: "slow", Priority: 1, Enabled: true,
			Timeout: 20 * time.Millisecond, CostMultiplier: 1.0,
			Adapter: adapter,
		}))
		s := New(registry, nil, Config{MaxFallbackAttempts: 3}, logger)
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		_, attempts, err := s.Execute(context.Background(), req, candidates("slow"))
		require.Error(t, err)
		assert.True(t, services.IsExhaustedError(err))
		require.Len(t, attempts, 1)
		assert.Equal(t, models.AttemptTimeout, attempts[0].Outcome)
	})

	t.Run("cancellation between attempts", func(t *testing.T) {
		f := newFixture(t, "alpha", "beta")
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, attempts, err := f.service.Execute(cancelled, req, candidates("alpha", "beta"))
		require.Error(t, err)
		assert.True(t, services.IsCancelledError(err))
		assert.Empty(t, attempts)
		assert.Equal(t, 0, f.adapters["alpha"].Invocations())
	})

	t.Run("successful attempt records cost and health", func(t *testing.T) {
		f := newFixture(t, "alpha")
		req := models.NewRequest("hello", nil, models.TaskGeneric, "standard", 0)

		_, attempts, err := f.service.Execute(ctx, req, candidates("alpha"))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, attempts[0].EstimatedCost, 0.0001)

		h, err := f.registry.Health("alpha")
		require.NoError(t, err)
		assert.Equal(t, int64(1), h.Observations)
	})
}

func TestService_ExecuteBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("results in payload order", func(t *testing.T) {
		f := newFixture(t, "alpha")
		payloads := []providers.InvokePayload{{Content: "one"}, {Content: "two"}}

		results, err := f.service.ExecuteBatch(ctx, "alpha", payloads)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Contains(t, results[0].Content, "one")
		assert.Contains(t, results[1].Content, "two")
		assert.Equal(t, 1, f.adapters["alpha"].BatchCalls())
	})

	t.Run("failure reports health and surfaces error", func(t *testing.T) {
		f := newFixture(t, "alpha")
		f.adapters["alpha"].FailNext = 1

		_, err := f.service.ExecuteBatch(ctx, "alpha", []providers.InvokePayload{{Content: "one"}})
		require.Error(t, err)

		h, healthErr := f.registry.Health("alpha")
		require.NoError(t, healthErr)
		assert.Equal(t, 1, h.ConsecutiveFailures)
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t, "alpha")
		_, err := f.service.ExecuteBatch(ctx, "ghost", nil)
		assert.True(t, services.IsNotFoundError(err))
	})
}
