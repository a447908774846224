package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat/llm"
)

// GenerationConfig controls sentence synthesis.
type GenerationConfig struct {
	DoSample          bool `json:"do_sample" yaml:"do_sample" mapstructure:"do_sample"`
	NumBeams          int  `json:"num_beams" yaml:"num_beams" mapstructure:"num_beams"`
	NoRepeatNgramSize int  `json:"no_repeat_ngram_size" yaml:"no_repeat_ngram_size" mapstructure:"no_repeat_ngram_size"`
	EarlyStopping     bool `json:"early_stopping" yaml:"early_stopping" mapstructure:"early_stopping"`
	MaxNewTokens      int  `json:"max_new_tokens" yaml:"max_new_tokens" mapstructure:"max_new_tokens"`
}

// DefaultGenerationConfig returns sampling on, 4 beams, no repeated
// trigrams, early stopping and at most 20 new tokens.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		DoSample:          true,
		NumBeams:          4,
		NoRepeatNgramSize: 3,
		EarlyStopping:     true,
		MaxNewTokens:      20,
	}
}

const sentencePrompt = `Write one short, factual English sentence that uses these keywords in this order: %s.
Use only the facts given by the keywords. Reply with the sentence only.`

// LLMSynthesizer phrases triples with a chat model.
type LLMSynthesizer struct {
	chat  llm.Provider
	model string
}

// NewLLMSynthesizer creates a synthesizer backed by chat. An empty model uses
// the provider default.
func NewLLMSynthesizer(chat llm.Provider, model string) *LLMSynthesizer {
	return &LLMSynthesizer{chat: chat, model: model}
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, t Triple, cfg GenerationConfig) (string, error) {
	keywords := fmt.Sprintf("%q, %q, %q", t.Subject, t.Relation, t.Object)
	req := chatRequest(cfg)
	req.Model = s.model
	req.Messages = []llm.Message{{Role: "user", Content: fmt.Sprintf(sentencePrompt, keywords)}}

	resp, err := s.chat.Chat(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "synthesizing sentence")
	}
	text := firstSentence(resp.Content)
	if text == "" {
		return "", errors.New("synthesizer returned no text")
	}
	return text, nil
}

// chatRequest maps generation settings onto chat sampling options. Chat APIs
// have no beam search, so beams are approximated by a lower temperature.
// Early stopping ends the reply at the first line break.
func chatRequest(cfg GenerationConfig) llm.ChatRequest {
	var req llm.ChatRequest
	if cfg.DoSample {
		req.Temperature = 0.7
		if cfg.NumBeams > 1 {
			req.Temperature = 0.4
		}
		req.TopP = 0.9
	}
	req.MaxTokens = cfg.MaxNewTokens
	if cfg.NoRepeatNgramSize > 0 {
		req.RepeatWindow = cfg.NoRepeatNgramSize
		req.RepeatPenalty = 1.5
	}
	if cfg.EarlyStopping {
		req.Stop = []string{"\n"}
	}
	return req
}

// firstSentence keeps the first line of s without surrounding quotes.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
