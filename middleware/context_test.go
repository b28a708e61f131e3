package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "abc-123")
		assert.Equal(t, "abc-123", GetRequestIDFromContext(ctx))
	})

	t.Run("absent id yields empty string", func(t *testing.T) {
		assert.Empty(t, GetRequestIDFromContext(context.Background()))
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates an id when none supplied", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestIDFromContext(r.Context())
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("propagates an incoming id", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "upstream-42", seen)
		assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))
	})
}
