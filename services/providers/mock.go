package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter is a configurable in-memory adapter used in tests and for
// local wiring without a real backend.
type MockAdapter struct {
	mu sync.Mutex

	// ResponsePrefix is prepended to the echoed content
	ResponsePrefix string

	// Latency is the simulated call duration
	Latency time.Duration

	// FailNext holds the number of upcoming invocations that should fail
	FailNext int

	// FailWith is the error returned while FailNext > 0
	FailWith error

	// ProbeErr is returned by HealthProbe when non-nil
	ProbeErr error

	invocations  int
	batchCalls   int
	lastPayloads []InvokePayload
}

// NewMockAdapter creates a mock adapter that echoes payload content.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{ResponsePrefix: "mock: "}
}

// Invoke implements Adapter.
func (m *MockAdapter) Invoke(ctx context.Context, payload InvokePayload) (*InvokeResult, error) {
	m.mu.Lock()
	m.invocations++
	m.lastPayloads = []InvokePayload{payload}
	fail := m.FailNext > 0
	if fail {
		m.FailNext--
	}
	failErr := m.FailWith
	latency := m.Latency
	prefix := m.ResponsePrefix
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fail {
		if failErr != nil {
			return nil, failErr
		}
		return nil, NewProviderError("mock", "SIMULATED", "simulated failure", 500, false, nil)
	}

	return &InvokeResult{
		Content:    prefix + payload.Content,
		TokensUsed: len(payload.Content) / 4,
		RawLatency: latency,
	}, nil
}

// InvokeBatch implements Adapter, returning one result per payload in order.
func (m *MockAdapter) InvokeBatch(ctx context.Context, payloads []InvokePayload) ([]InvokeResult, error) {
	m.mu.Lock()
	m.batchCalls++
	m.lastPayloads = payloads
	fail := m.FailNext > 0
	if fail {
		m.FailNext--
	}
	failErr := m.FailWith
	latency := m.Latency
	prefix := m.ResponsePrefix
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fail {
		if failErr != nil {
			return nil, failErr
		}
		return nil, NewProviderError("mock", "SIMULATED", "simulated batch failure", 500, false, nil)
	}

	results := make([]InvokeResult, len(payloads))
	for i, payload := range payloads {
		results[i] = InvokeResult{
			Content:    fmt.Sprintf("%s[%d] %s", prefix, i, payload.Content),
			TokensUsed: len(payload.Content) / 4,
			RawLatency: latency,
		}
	}
	return results, nil
}

// HealthProbe implements Adapter.
func (m *MockAdapter) HealthProbe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ProbeErr
}

// Invocations returns the number of single-invoke calls observed.
func (m *MockAdapter) Invocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invocations
}

// BatchCalls returns the number of batch calls observed.
func (m *MockAdapter) BatchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls
}

// LastPayloads returns the payloads of the most recent call.
func (m *MockAdapter) LastPayloads() []InvokePayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPayloads
}
