package providers

import (
	"context"
	"time"
)

// Adapter is the boundary contract implemented once per LLM backend kind.
// Timeouts are enforced by the caller through the context deadline.
type Adapter interface {
	// Invoke sends a single payload to the backend
	Invoke(ctx context.Context, payload InvokePayload) (*InvokeResult, error)

	// InvokeBatch sends several payloads as one backend call and returns
	// per-member results in payload order. Only meaningful for adapters
	// whose provider declares batching support.
	InvokeBatch(ctx context.Context, payloads []InvokePayload) ([]InvokeResult, error)

	// HealthProbe checks whether the backend is reachable and serving
	HealthProbe(ctx context.Context) error
}

// InvokePayload is the provider-agnostic request body for one invocation.
type InvokePayload struct {
	// Content is the prompt or task text
	Content string `json:"content"`

	// Code is optional source context
	Code string `json:"code,omitempty"`

	// Language is the programming language hint
	Language string `json:"language,omitempty"`

	// TaskType labels the work for backends that specialize
	TaskType string `json:"task_type,omitempty"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`
}

// InvokeResult is the provider-agnostic response for one invocation.
type InvokeResult struct {
	// Content is the generated text
	Content string `json:"content"`

	// TokensUsed is the total token count charged by the backend
	TokensUsed int `json:"tokens_used"`

	// RawLatency is the backend-reported or measured call latency
	RawLatency time.Duration `json:"-"`
}

// ProviderError represents a normalized error from a provider backend.
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Rejected indicates the backend refused the request outright
	// (rate limit, over capacity) rather than failing mid-flight
	Rejected bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, rejected bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Rejected:   rejected,
		Cause:      cause,
	}
}

// IsRejection checks if an error is a provider-side rejection
func IsRejection(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Rejected
	}
	return false
}

// Kind enumerates the supported backend kinds.
type Kind string

const (
	KindLocalInference Kind = "local-inference"
	KindHostedAPI      Kind = "hosted-api"
	KindGateway        Kind = "gateway"
)

// Capabilities describes what a configured provider can do.
type Capabilities struct {
	SupportsBatching  bool
	SupportsStreaming bool
	MaxTokens         int
	Languages         map[string]bool // empty means all languages
}

// SupportsLanguage reports whether the provider accepts the given language.
// Providers with no declared language list accept everything.
func (c Capabilities) SupportsLanguage(lang string) bool {
	if len(c.Languages) == 0 || lang == "" {
		return true
	}
	return c.Languages[lang]
}

// Provider is a configured backend endpoint plus its adapter.
// Health lives in the registry entry, not here; Provider values handed out
// by the registry are snapshots safe for concurrent use.
type Provider struct {
	ID             string
	Kind           Kind
	Priority       int
	Enabled        bool
	Capabilities   Capabilities
	Timeout        time.Duration
	RateLimit      int // requests per minute, 0 = unlimited
	CostMultiplier float64
	MaxBatchSize   int
	MaxBatchWait   time.Duration
	Adapter        Adapter `json:"-"`
}

// Filter is a capability predicate used by Registry.List.
type Filter func(p *Provider, h HealthState) bool

// WithBatching matches providers that support batching.
func WithBatching() Filter {
	return func(p *Provider, _ HealthState) bool {
		return p.Capabilities.SupportsBatching
	}
}

// WithLanguage matches providers that support the given language.
func WithLanguage(lang string) Filter {
	return func(p *Provider, _ HealthState) bool {
		return p.Capabilities.SupportsLanguage(lang)
	}
}

// Available matches providers that are not marked unavailable.
func Available() Filter {
	return func(_ *Provider, h HealthState) bool {
		return h.Status != StatusUnavailable
	}
}
