package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/pkg/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewGenerationError(ErrCodeUnreachable, "ollama", "qwen3:14b", "chat failed", cause)
	assert.Contains(t, err.Error(), "BACKEND_UNREACHABLE")
	assert.Contains(t, err.Error(), "qwen3:14b")
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("summarize: %w", err)
	assert.True(t, IsUnreachable(wrapped))
	assert.False(t, IsMalformed(wrapped))
	assert.Equal(t, ErrCodeUnreachable, CodeOf(errors.New("other")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestOllamaBackend(t *testing.T) {
	t.Run("success sends deterministic options", func(t *testing.T) {
		var got ollamaChatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "corrected"}, Done: true})
		}))
		defer srv.Close()

		b := NewOllamaBackend(srv.URL, fastRetry(), nil)
		out, err := b.Generate(context.Background(), Request{System: "sys", Prompt: "text", Model: "qwen3:8b", JSON: true})
		require.NoError(t, err)
		assert.Equal(t, "corrected", out)
		assert.Equal(t, "qwen3:8b", got.Model)
		assert.False(t, got.Stream)
		assert.Equal(t, "json", got.Format)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "system", got.Messages[0].Role)
		assert.EqualValues(t, 0, got.Options["temperature"])
		assert.EqualValues(t, numPredict, got.Options["num_predict"])
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "loading model", http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Content: "ok"}})
		}))
		defer srv.Close()

		out, err := NewOllamaBackend(srv.URL, fastRetry(), nil).Generate(context.Background(), Request{Prompt: "p", Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("unknown model is rejected without retry", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewOllamaBackend(srv.URL, fastRetry(), nil).Generate(context.Background(), Request{Prompt: "p", Model: "nope"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeRejected, CodeOf(err))
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		_, err := NewOllamaBackend(srv.URL, fastRetry(), nil).Generate(context.Background(), Request{Prompt: "p"})
		assert.True(t, IsMalformed(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewOllamaBackend(url, fastRetry(), nil).Generate(context.Background(), Request{Prompt: "p"})
		assert.True(t, IsUnreachable(err))
	})
}

func chatCompletionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func TestOpenAIBackend(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(chatCompletionBody("## Overview\nfine")))
		}))
		defer srv.Close()

		b := NewOpenAIBackend("key", srv.URL+"/v1", fastRetry(), nil)
		out, err := b.Generate(context.Background(), Request{System: "s", Prompt: "p", Model: "gpt-4o-mini", JSON: true})
		require.NoError(t, err)
		assert.Equal(t, "## Overview\nfine", out)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.NotNil(t, body["response_format"])
		assert.Len(t, body["messages"], 2)
	})

	t.Run("bad request not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()

		_, err := NewOpenAIBackend("key", srv.URL+"/v1", fastRetry(), nil).Generate(context.Background(), Request{Prompt: "p", Model: "x"})
		assert.Equal(t, ErrCodeRejected, CodeOf(err))
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("empty completion is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(chatCompletionBody("  ")))
		}))
		defer srv.Close()

		_, err := NewOpenAIBackend("key", srv.URL+"/v1", fastRetry(), nil).Generate(context.Background(), Request{Prompt: "p", Model: "x"})
		assert.True(t, IsMalformed(err))
	})
}

func TestNew(t *testing.T) {
	b, err := New(Settings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", b.Name())

	b, err = New(Settings{Kind: "OpenAI", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Name())

	_, err = New(Settings{Kind: "bard"}, nil)
	assert.Error(t, err)
}
