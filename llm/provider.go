package llm

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Provider is the interface for LLM interactions.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts, one vector per text
	// in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request. Zero-valued sampling fields are
// left to the server default.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// RepeatPenalty above 1 discourages repeating recent tokens.
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	// RepeatWindow is how many trailing tokens RepeatPenalty looks at.
	RepeatWindow int `json:"repeat_window,omitempty"`
	// Stop ends generation at the first of these sequences, which is not
	// included in the reply.
	Stop []string `json:"stop,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"` // ollama, lmstudio, openai, openrouter, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`

	// Timeout bounds a single HTTP request. Zero means 120s.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// MaxRetries is the number of retries on transient failures. Negative
	// disables retries, zero means the default of 6.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ErrNoProvider is returned by NewProvider when no provider is configured.
var ErrNoProvider = errors.New("llm provider not specified")

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "":
		return nil, ErrNoProvider
	}
	if _, ok := hosted[cfg.Provider]; ok {
		return NewOpenAICompat(cfg), nil
	}
	return nil, errors.Newf("unknown llm provider: %s", cfg.Provider)
}
