//go:build unit

package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genflow/internal/pkg/config"
	"genflow/internal/pkg/errs"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.GenerationConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
	}
	return NewClient(cfg), srv
}

func TestClient_Submit(t *testing.T) {
	t.Run("returns reference on success", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/generations", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "gen-123"})
		}))

		ref, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{"prompt":"a cat"}`),
		})

		require.NoError(t, err)
		assert.Equal(t, "gen-123", ref)
	})

	t.Run("retries server errors until success", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "gen-456"})
		}))

		ref, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.NoError(t, err)
		assert.Equal(t, "gen-456", ref)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))

		_, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
		var re *RemoteError
		require.True(t, errs.As(err, &re))
		assert.False(t, re.Retryable)
		assert.False(t, errs.Is(err, ErrRetryExhausted))
	})

	t.Run("retries 429 as retryable", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "gen-789"})
		}))

		ref, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.NoError(t, err)
		assert.Equal(t, "gen-789", ref)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("marks exhaustion after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.Error(t, err)
		assert.True(t, errs.Is(err, ErrRetryExhausted))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("makes a single attempt when max attempts is zero", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)
		client := NewClient(config.GenerationConfig{
			BaseURL:        srv.URL,
			RequestTimeout: 2 * time.Second,
			MaxAttempts:    0,
			BaseBackoff:    time.Millisecond,
		})

		_, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("does not retry an undecodable success body", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"id":`))
		}))

		_, err := client.Submit(context.Background(), SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.False(t, errs.Is(err, ErrRetryExhausted))
	})

	t.Run("stops once the caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			cancel()
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		_, err := client.Submit(ctx, SubmitRequest{
			JobID:   uuid.New(),
			Payload: json.RawMessage(`{}`),
		})

		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, errs.Is(err, ErrRetryExhausted))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClient_Poll(t *testing.T) {
	t.Run("normalizes remote statuses", func(t *testing.T) {
		tests := []struct {
			remote string
			want   Status
		}{
			{"succeeded", StatusSucceeded},
			{"completed", StatusSucceeded},
			{"done", StatusSucceeded},
			{"failed", StatusFailed},
			{"canceled", StatusFailed},
			{"error", StatusFailed},
			{"running", StatusRunning},
			{"queued", StatusRunning},
		}
		for _, tt := range tests {
			t.Run(tt.remote, func(t *testing.T) {
				client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					assert.Equal(t, "/v1/generations/gen-1", r.URL.Path)
					_ = json.NewEncoder(w).Encode(map[string]any{"status": tt.remote})
				}))

				result, err := client.Poll(context.Background(), "gen-1")

				require.NoError(t, err)
				assert.Equal(t, tt.want, result.Status)
			})
		}
	})

	t.Run("carries output and error text", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "failed",
				"output": map[string]string{"url": "https://cdn.example/x.png"},
				"error":  "content policy violation",
			})
		}))

		result, err := client.Poll(context.Background(), "gen-2")

		require.NoError(t, err)
		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, "content policy violation", result.ErrorText)
		assert.JSONEq(t, `{"url":"https://cdn.example/x.png"}`, string(result.ResultPayload))
	})

	t.Run("maps 404 to unknown reference", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := client.Poll(context.Background(), "gen-missing")

		require.Error(t, err)
		assert.True(t, errs.Is(err, ErrUnknownRef))
	})
}
