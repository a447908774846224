package llm

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ollamaProvider implements Provider for Ollama's native API. The native
// chat endpoint exposes repeat_penalty and repeat_last_n, which the
// OpenAI-compatible endpoint drops.
type ollamaProvider struct {
	base httpClient
}

// NewOllama creates a provider for Ollama.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &ollamaProvider{base: newHTTPClient(cfg)}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (p *ollamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.base.cfg.Model
	}

	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.RepeatPenalty > 0 {
		opts["repeat_penalty"] = req.RepeatPenalty
	}
	if req.RepeatWindow > 0 {
		opts["repeat_last_n"] = req.RepeatWindow
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}

	body := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Options:  opts,
	}
	if req.ResponseFormat == "json_object" {
		body.Format = "json"
	}

	respBody, err := p.base.doPost(ctx, "/api/chat", body)
	if err != nil {
		return nil, errors.Wrap(err, "ollama chat")
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding ollama chat response")
	}
	return &ChatResponse{
		Content:          resp.Message.Content,
		Model:            resp.Model,
		FinishReason:     resp.DoneReason,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	respBody, err := p.base.doPost(ctx, "/api/embed", ollamaEmbedRequest{
		Model: p.base.cfg.Model,
		Input: texts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ollama embed")
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, errors.Wrap(err, "decoding ollama embed response")
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, errors.Newf("ollama returned %d embeddings for %d inputs", len(embedResp.Embeddings), len(texts))
	}

	result := make([][]float32, len(embedResp.Embeddings))
	for i, emb := range embedResp.Embeddings {
		result[i] = float64sToFloat32s(emb)
	}
	return result, nil
}

func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
