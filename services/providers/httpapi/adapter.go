// Package httpapi implements the provider adapter contract for backends that
// speak a JSON-over-HTTP inference protocol: hosted APIs, local inference
// servers and gateways share the same wire shape and differ only in base URL
// and authentication.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openassist/llm-orchestrator/services/providers"
)

// Config holds adapter-level settings.
type Config struct {
	// ProviderID names the provider for error attribution
	ProviderID string

	// BaseURL of the backend, e.g. http://localhost:8000
	BaseURL string

	// APIKey sent as a bearer token when non-empty
	APIKey string

	// Headers are additional headers applied to every request
	Headers map[string]string
}

// Adapter implements providers.Adapter over a JSON HTTP protocol.
// The per-attempt timeout is carried by the caller's context; the embedded
// http.Client has no timeout of its own.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a new HTTP adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Invoke implements providers.Adapter.
func (a *Adapter) Invoke(ctx context.Context, payload providers.InvokePayload) (*providers.InvokeResult, error) {
	var resp generateResponse
	start := time.Now()
	if err := a.post(ctx, "/v1/generate", generateRequest{Payload: payload}, &resp); err != nil {
		return nil, err
	}
	latency := resp.LatencyMs.duration()
	if latency == 0 {
		latency = time.Since(start)
	}
	return &providers.InvokeResult{
		Content:    resp.Content,
		TokensUsed: resp.TokensUsed,
		RawLatency: latency,
	}, nil
}

// InvokeBatch implements providers.Adapter. The backend must return exactly
// one result per payload, in order; anything else is a protocol error.
func (a *Adapter) InvokeBatch(ctx context.Context, payloads []providers.InvokePayload) ([]providers.InvokeResult, error) {
	var resp batchResponse
	start := time.Now()
	if err := a.post(ctx, "/v1/generate_batch", batchRequest{Payloads: payloads}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(payloads) {
		return nil, providers.NewProviderError(a.cfg.ProviderID, "BATCH_SHAPE",
			fmt.Sprintf("backend returned %d results for %d payloads", len(resp.Results), len(payloads)),
			0, false, nil)
	}
	elapsed := time.Since(start)
	results := make([]providers.InvokeResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = providers.InvokeResult{
			Content:    r.Content,
			TokensUsed: r.TokensUsed,
			RawLatency: elapsed,
		}
	}
	return results, nil
}

// HealthProbe implements providers.Adapter.
func (a *Adapter) HealthProbe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return providers.NewProviderError(a.cfg.ProviderID, "REQUEST_ERROR", "failed to create probe request", 0, false, err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return providers.NewProviderError(a.cfg.ProviderID, "PROBE_ERROR", "health probe failed", 0, false, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.NewProviderError(a.cfg.ProviderID, "PROBE_STATUS",
			fmt.Sprintf("health probe returned status %d", resp.StatusCode), resp.StatusCode, false, nil)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return providers.NewProviderError(a.cfg.ProviderID, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return providers.NewProviderError(a.cfg.ProviderID, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	a.setHeaders(httpReq)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return providers.NewProviderError(a.cfg.ProviderID, "TIMEOUT", "request deadline exceeded", 0, false, err)
		}
		return providers.NewProviderError(a.cfg.ProviderID, "HTTP_ERROR", "request failed", 0, false, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewProviderError(a.cfg.ProviderID, "READ_ERROR", "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewProviderError(a.cfg.ProviderID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	return nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}
}

// handleErrorResponse normalizes backend error payloads. Backend internals
// never leak verbatim to callers; the message is carried for diagnostics
// only and the failover layer decides what is user-visible.
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	msg := "backend error"
	code := "BACKEND_ERROR"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
		if errResp.Error.Code != "" {
			code = errResp.Error.Code
		}
	}

	// 429 and 503 are capacity rejections, everything else a plain failure
	rejected := statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable

	return providers.NewProviderError(a.cfg.ProviderID, code, msg, statusCode, rejected, nil)
}

// Wire types

type generateRequest struct {
	Payload providers.InvokePayload `json:"payload"`
}

type generateResponse struct {
	Content    string   `json:"content"`
	TokensUsed int      `json:"tokens_used"`
	LatencyMs  floatMs  `json:"latency_ms"`
}

type batchRequest struct {
	Payloads []providers.InvokePayload `json:"payloads"`
}

type batchResponse struct {
	Results []generateResponse `json:"results"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// floatMs decodes an optional millisecond latency field.
type floatMs float64

func (f floatMs) duration() time.Duration {
	return time.Duration(float64(f) * float64(time.Millisecond))
}
