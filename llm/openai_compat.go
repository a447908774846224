package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// endpoint describes where an OpenAI-compatible service lives by default.
type endpoint struct {
	baseURL string
	prefix  string // API path prefix
}

// hosted lists the OpenAI-compatible services NewProvider knows about.
// Gemini serves its compatibility layer without the /v1 prefix.
var hosted = map[string]endpoint{
	"openai":     {"https://api.openai.com", "/v1"},
	"openrouter": {"https://openrouter.ai/api", "/v1"},
	"groq":       {"https://api.groq.com/openai", "/v1"},
	"xai":        {"https://api.x.ai", "/v1"},
	"gemini":     {"https://generativelanguage.googleapis.com/v1beta/openai", ""},
	"lmstudio":   {"http://localhost:1234", "/v1"},
	"custom":     {"", "/v1"},
}

// httpClient is the transport shared by every provider: JSON POST with
// retries on transient failures and 429 handling.
type httpClient struct {
	cfg        Config
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	rateDelay  time.Duration
}

const (
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 6
	baseRetryDelay    = 2 * time.Second
	minRateLimitDelay = 5 * time.Second // minimum delay for 429 errors
)

func newHTTPClient(cfg Config) httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		// Generous for local providers which may load models on first request.
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}
	return httpClient{
		cfg:        cfg,
		client:     &http.Client{Timeout: timeout},
		maxRetries: retries,
		baseDelay:  baseRetryDelay,
		rateDelay:  minRateLimitDelay,
	}
}

// NewOpenAICompat creates a provider for an OpenAI-compatible API. The
// default base URL and path prefix come from cfg.Provider; unknown names
// are treated like "custom".
func NewOpenAICompat(cfg Config) Provider {
	ep, ok := hosted[cfg.Provider]
	if !ok {
		ep = hosted["custom"]
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ep.baseURL
	}
	return &openAICompatProvider{base: newHTTPClient(cfg), prefix: ep.prefix}
}

type openAICompatProvider struct {
	base   httpClient
	prefix string
}

type chatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
	TopP             float64         `json:"top_p,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *openAICompatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.base.cfg.Model
	}

	body := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	// OpenAI has no multiplicative repeat penalty; map the excess onto the
	// additive frequency penalty, which the API caps at 2.
	if req.RepeatPenalty > 1 {
		body.FrequencyPenalty = min(req.RepeatPenalty-1, 2)
	}
	if req.ResponseFormat == "json_object" {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	respBody, err := p.base.doPost(ctx, p.prefix+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding chat response")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	return &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		FinishReason:     resp.Choices[0].FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (p *openAICompatProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	respBody, err := p.base.doPost(ctx, p.prefix+"/embeddings", embeddingRequest{
		Model: p.base.cfg.Model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding embedding response")
	}

	// Sort by index to ensure correct ordering
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, errors.Newf("embedding response missing vector %d of %d", i, len(texts))
		}
	}
	return embeddings, nil
}

// retryableStatusCode returns true for HTTP status codes that warrant a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *httpClient) doPost(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			slog.Warn("llm: retrying request",
				"url", url,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Retry on network/timeout errors (not context cancellation).
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = errors.Wrapf(err, "request to %s failed", url)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "reading response body")
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = errors.Newf("LLM API error %d: %s", resp.StatusCode, string(respBody))
		if !retryableStatusCode(resp.StatusCode) {
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			rateLimitDelay := c.rateDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					rateLimitDelay = max(rateLimitDelay, time.Duration(seconds)*time.Second)
				}
			}
			slog.Warn("llm: rate limited, waiting before retry",
				"url", url,
				"attempt", attempt+1,
				"delay", rateLimitDelay,
			)
			if err := sleep(ctx, rateLimitDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.Wrap(lastErr, "max retries exceeded")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
