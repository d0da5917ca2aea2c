package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questgen/internal/config"
	"questgen/internal/observability"
)

func newTestLLMClient(t *testing.T, handler http.HandlerFunc) (*LLMClient, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	cfg := &config.GenerationConfig{
		Model:         "test-model",
		BaseURL:       server.URL,
		Temperature:   0.7,
		Timeout:       5 * time.Second,
		MaxConcurrent: 2,
	}
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	client := NewLLMClient(cfg, logger)

	cleanup := func() {
		server.Close()
	}
	return client, cleanup
}

func geminiTextResponse(text string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
				"role":  "model",
			},
			"finishReason": "STOP",
		}},
	})
	return string(body)
}

func TestLLMClient_GenerateContent_Success(t *testing.T) {
	var receivedPath string
	var receivedKey string
	var receivedBody []byte
	handler := func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedKey = r.Header.Get("x-goog-api-key")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		receivedBody = body

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiTextResponse(`{"answer": "1"}`)))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	schema := json.RawMessage(`{"type":"object"}`)
	content, err := client.GenerateContent(context.Background(), "secret-key", "Generate a question", schema, 0.4)
	require.NoError(t, err)
	assert.Equal(t, `{"answer": "1"}`, content)

	assert.Equal(t, "/models/test-model:generateContent", receivedPath)
	assert.Equal(t, "secret-key", receivedKey)

	var req geminiRequest
	require.NoError(t, json.Unmarshal(receivedBody, &req))
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 1)
	assert.Equal(t, "Generate a question", req.Contents[0].Parts[0].Text)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.InDelta(t, 0.4, req.GenerationConfig.Temperature, 0.0001)
	assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
	assert.JSONEq(t, `{"type":"object"}`, string(req.GenerationConfig.ResponseSchema))
}

func TestLLMClient_GenerateContent_OmitsSchemaWhenNil(t *testing.T) {
	var receivedBody []byte
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		receivedBody = body
		_, _ = w.Write([]byte(geminiTextResponse("ok")))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	_, err := client.GenerateContent(context.Background(), "secret-key", "ping", nil, 0)
	require.NoError(t, err)

	assert.NotContains(t, string(receivedBody), "responseSchema")
	assert.NotContains(t, string(receivedBody), "responseMimeType")
}

func TestLLMClient_GenerateContent_ConcatenatesParts(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		body, _ := json.Marshal(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"parts": []map[string]string{
						{"text": `{"answer"`},
						{"text": `: "2"}`},
					},
				},
			}},
		})
		_, _ = w.Write(body)
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	content, err := client.GenerateContent(context.Background(), "secret-key", "prompt", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"answer": "2"}`, content)
}

func TestLLMClient_GenerateContent_HTTPErrorCarriesStatusAndBody(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Resource has been exhausted (e.g. check quota).", "status": "RESOURCE_EXHAUSTED"}}`))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	_, err := client.GenerateContent(context.Background(), "secret-key", "prompt", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota")
}

func TestLLMClient_GenerateContent_APIErrorField(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"}}`))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	_, err := client.GenerateContent(context.Background(), "secret-key", "prompt", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestLLMClient_GenerateContent_NoCandidates(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	_, err := client.GenerateContent(context.Background(), "secret-key", "prompt", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestLLMClient_GenerateContent_EmptyContent(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geminiTextResponse("")))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	_, err := client.GenerateContent(context.Background(), "secret-key", "prompt", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty content")
}

func TestLLMClient_GenerateContent_InputValidation(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geminiTextResponse("ok")))
	}

	client, cleanup := newTestLLMClient(t, handler)
	defer cleanup()

	_, err := client.GenerateContent(context.Background(), "", "prompt", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential is required")

	_, err = client.GenerateContent(context.Background(), "secret-key", "", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt cannot be empty")
}

func TestLLMClient_ConcurrencyControl(t *testing.T) {
	client, cleanup := newTestLLMClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geminiTextResponse("ok")))
	})
	defer cleanup()

	t.Run("GetConcurrencyStats", func(t *testing.T) {
		stats := client.GetConcurrencyStats()
		assert.Equal(t, 2, stats.MaxConcurrent)
		assert.Equal(t, 0, stats.ActiveRequests)
		assert.Equal(t, int64(0), stats.TotalRequests)
	})

	t.Run("Semaphore limits", func(t *testing.T) {
		ctx := context.Background()

		err1 := client.acquireGlobalSlot(ctx)
		assert.NoError(t, err1)

		err2 := client.acquireGlobalSlot(ctx)
		assert.NoError(t, err2)

		// Third acquisition should fail fast
		err3 := client.acquireGlobalSlot(ctx)
		assert.Error(t, err3)
		assert.Contains(t, err3.Error(), "at capacity")

		client.releaseGlobalSlot(ctx)

		err4 := client.acquireGlobalSlot(ctx)
		assert.NoError(t, err4)

		client.releaseGlobalSlot(ctx)
		client.releaseGlobalSlot(ctx)
	})

	t.Run("Stats tracking", func(t *testing.T) {
		ctx := context.Background()

		err := client.withConcurrencyControl(ctx, func() error {
			stats := client.GetConcurrencyStats()
			assert.Equal(t, 1, stats.ActiveRequests)
			return nil
		})
		assert.NoError(t, err)

		stats := client.GetConcurrencyStats()
		assert.Equal(t, 0, stats.ActiveRequests)
		assert.Positive(t, stats.TotalRequests)
	})
}

func TestLLMClient_Shutdown(t *testing.T) {
	client, cleanup := newTestLLMClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geminiTextResponse("ok")))
	})
	defer cleanup()

	assert.False(t, client.isShutdown())

	err := client.Shutdown(context.Background())
	assert.NoError(t, err)
	assert.True(t, client.isShutdown())

	_, err = client.GenerateContent(context.Background(), "secret-key", "prompt", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutting down")
}

func TestLLMClient_TestConnection(t *testing.T) {
	client, cleanup := newTestLLMClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geminiTextResponse("ok")))
	})
	defer cleanup()

	assert.NoError(t, client.TestConnection(context.Background(), "secret-key"))
}

func TestLLMClient_TestConnection_Failure(t *testing.T) {
	client, cleanup := newTestLLMClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid API key"}}`))
	})
	defer cleanup()

	err := client.TestConnection(context.Background(), "bad-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")
}
