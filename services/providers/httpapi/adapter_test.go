package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openassist/llm-orchestrator/services/providers"
)

func TestAdapter_Invoke(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/generate", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var req generateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello", req.Payload.Content)

			_ = json.NewEncoder(w).Encode(generateResponse{
				Content:    "world",
				TokensUsed: 7,
				LatencyMs:  12.5,
			})
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL, APIKey: "secret"})
		result, err := a.Invoke(context.Background(), providers.InvokePayload{Content: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "world", result.Content)
		assert.Equal(t, 7, result.TokensUsed)
		assert.Equal(t, 12500*time.Microsecond, result.RawLatency)
	})

	t.Run("rate limit is a rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMIT","message":"slow down"}}`))
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		_, err := a.Invoke(context.Background(), providers.InvokePayload{Content: "hello"})
		require.Error(t, err)
		assert.True(t, providers.IsRejection(err))

		var provErr *providers.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "RATE_LIMIT", provErr.Code)
		assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	})

	t.Run("server error is not a rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		_, err := a.Invoke(context.Background(), providers.InvokePayload{Content: "hello"})
		require.Error(t, err)
		assert.False(t, providers.IsRejection(err))
	})

	t.Run("deadline exceeded maps to timeout code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := a.Invoke(ctx, providers.InvokePayload{Content: "hello"})
		require.Error(t, err)

		var provErr *providers.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "TIMEOUT", provErr.Code)
	})
}

func TestAdapter_InvokeBatch(t *testing.T) {
	t.Run("one result per payload in order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/generate_batch", r.URL.Path)

			var req batchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			resp := batchResponse{}
			for _, p := range req.Payloads {
				resp.Results = append(resp.Results, generateResponse{Content: "echo " + p.Content})
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		results, err := a.InvokeBatch(context.Background(), []providers.InvokePayload{
			{Content: "one"}, {Content: "two"},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "echo one", results[0].Content)
		assert.Equal(t, "echo two", results[1].Content)
	})

	t.Run("result count mismatch is a protocol error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(batchResponse{Results: []generateResponse{{Content: "only one"}}})
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		_, err := a.InvokeBatch(context.Background(), []providers.InvokePayload{
			{Content: "one"}, {Content: "two"},
		})
		require.Error(t, err)

		var provErr *providers.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "BATCH_SHAPE", provErr.Code)
	})
}

func TestAdapter_HealthProbe(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		assert.NoError(t, a.HealthProbe(context.Background()))
	})

	t.Run("non-200 fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		a := New(Config{ProviderID: "test", BaseURL: srv.URL})
		assert.Error(t, a.HealthProbe(context.Background()))
	})
}
