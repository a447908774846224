package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantType string
	}{
		{"ollama", "*llm.ollamaProvider"},
		{"lmstudio", "*llm.openAICompatProvider"},
		{"openrouter", "*llm.openAICompatProvider"},
		{"xai", "*llm.openAICompatProvider"},
		{"gemini", "*llm.openAICompatProvider"},
		{"custom", "*llm.openAICompatProvider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "test-model"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, fmt.Sprintf("%T", p))
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "doesnotexist", Model: "test-model"})
	require.Error(t, err)
	assert.Equal(t, "unknown llm provider: doesnotexist", err.Error())
}

func TestNewProviderEmpty(t *testing.T) {
	_, err := NewProvider(Config{Model: "test-model"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProvider))
}

// TestDefaultBaseURLs verifies that when BaseURL is empty in the config,
// each provider gets its service default.
func TestDefaultBaseURLs(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
	}{
		{"ollama", "http://localhost:11434"},
		{"lmstudio", "http://localhost:1234"},
		{"openrouter", "https://openrouter.ai/api"},
		{"xai", "https://api.x.ai"},
		{"custom", ""},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "m"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, baseOf(t, p).cfg.BaseURL)
		})
	}
}

func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999"
	for _, provider := range []string{"ollama", "lmstudio", "openrouter", "xai", "custom"} {
		t.Run(provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: provider, Model: "m", BaseURL: customURL})
			require.NoError(t, err)
			assert.Equal(t, customURL, baseOf(t, p).cfg.BaseURL)
		})
	}
}

func TestRetryDefaults(t *testing.T) {
	assert.Equal(t, defaultMaxRetries, newHTTPClient(Config{}).maxRetries)
	assert.Equal(t, 0, newHTTPClient(Config{MaxRetries: -1}).maxRetries)
	assert.Equal(t, 2, newHTTPClient(Config{MaxRetries: 2}).maxRetries)
	assert.Equal(t, defaultTimeout, newHTTPClient(Config{}).client.Timeout)
}

func TestOpenAICompatChat(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"gpt","choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", BaseURL: srv.URL, Model: "gpt", APIKey: "sk-test"})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:       []Message{{Role: "user", Content: "hi"}},
		Temperature:    0.7,
		MaxTokens:      20,
		RepeatPenalty:  1.3,
		Stop:           []string{"\n"},
		ResponseFormat: "json_object",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 4, resp.TotalTokens)

	assert.Equal(t, "gpt", got.Model)
	assert.Equal(t, 20, got.MaxTokens)
	assert.InDelta(t, 0.3, got.FrequencyPenalty, 1e-9)
	assert.Equal(t, []string{"\n"}, got.Stop)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAICompatEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", BaseURL: srv.URL, Model: "emb"})
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAICompatEmbedMissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestDoPostRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := fastClient(Config{BaseURL: srv.URL, MaxRetries: 3})
	body, err := c.doPost(context.Background(), "/x", map[string]string{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := fastClient(Config{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.doPost(context.Background(), "/x", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM API error 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoPostGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := fastClient(Config{BaseURL: srv.URL, MaxRetries: 2})
	_, err := c.doPost(context.Background(), "/x", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestOllamaChatUsesNativeOptions(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"llama3","message":{"role":"assistant","content":"Gandhi led the movement."},
			"done_reason":"stop","prompt_eval_count":10,"eval_count":5}`)
	}))
	defer srv.Close()

	p := NewOllama(Config{BaseURL: srv.URL, Model: "llama3"})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:      []Message{{Role: "user", Content: "gandhi led movement"}},
		Temperature:   0.8,
		MaxTokens:     20,
		RepeatPenalty: 1.5,
		RepeatWindow:  3,
		Stop:          []string{"\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Gandhi led the movement.", resp.Content)
	assert.Equal(t, 15, resp.TotalTokens)

	assert.False(t, got.Stream)
	assert.Equal(t, "llama3", got.Model)
	// JSON numbers decode as float64.
	assert.Equal(t, 20.0, got.Options["num_predict"])
	assert.Equal(t, 3.0, got.Options["repeat_last_n"])
	assert.Equal(t, 1.5, got.Options["repeat_penalty"])
	assert.Equal(t, []any{"\n"}, got.Options["stop"])
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		fmt.Fprint(w, `{"embeddings":[[0.5,0.25],[1,0]]}`)
	}))
	defer srv.Close()

	p := NewOllama(Config{BaseURL: srv.URL, Model: "nomic-embed-text"})
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}, {1, 0}}, vecs)

	_, err = p.Embed(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
}

func baseOf(t *testing.T, p Provider) httpClient {
	t.Helper()
	switch v := p.(type) {
	case *ollamaProvider:
		return v.base
	case *openAICompatProvider:
		return v.base
	}
	t.Fatalf("unexpected provider type %T", p)
	return httpClient{}
}

func fastClient(cfg Config) httpClient {
	c := newHTTPClient(cfg)
	c.baseDelay = time.Millisecond
	c.rateDelay = time.Millisecond
	return c
}
