package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/llm"
)

// normalizeText lowercases, maps Unicode whitespace and hyphens to ASCII,
// drops zero-width characters and trailing punctuation, and collapses runs
// of spaces.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			b.WriteByte('-')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(strings.Join(strings.Fields(b.String()), " "), ".!?")
}

// alternatives splits an expected answer on "|" so "Paris|paris, france"
// accepts either.
func alternatives(expected string) []string {
	var out []string
	for _, alt := range strings.Split(expected, "|") {
		if alt = normalizeText(alt); alt != "" {
			out = append(out, alt)
		}
	}
	return out
}

func exactMatch(answer, expected string) bool {
	got := normalizeText(answer)
	if got == "" {
		return false
	}
	for _, alt := range alternatives(expected) {
		if got == alt {
			return true
		}
	}
	return false
}

// containsAnswer reports whether any alternative appears in the answer,
// also comparing with spaces and hyphens removed.
func containsAnswer(answer, expected string) bool {
	got := normalizeText(answer)
	if got == "" {
		return false
	}
	squashed := squash(got)
	for _, alt := range alternatives(expected) {
		if strings.Contains(got, alt) || strings.Contains(squashed, squash(alt)) {
			return true
		}
	}
	return false
}

func squash(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "-", ""), " ", "")
}

const judgePrompt = `You are an evaluation judge for a question answering chatbot. Decide whether the chatbot's answer conveys the expected answer.

The answer is correct if it states the same core information, even if worded differently.
It is NOT correct if it contradicts the expected answer, omits it, or gets key details (numbers, names, dates) wrong.

Question:
%s

Expected answer:
%s

Chatbot answer:
%s

Respond with JSON: {"correct": true} or {"correct": false}.`

// judgeAnswer asks an LLM whether answer conveys qa.Answer.
func judgeAnswer(ctx context.Context, judge llm.Provider, model string, qa graph.QA, answer string) (bool, error) {
	resp, err := judge.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(judgePrompt, qa.Question, qa.Answer, answer)},
		},
		Temperature:    0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return false, errors.Wrap(err, "judge LLM call failed")
	}

	var result struct {
		Correct *bool `json:"correct"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return false, errors.Wrapf(err, "judge response parse error (response: %s)", truncate(resp.Content, 200))
	}
	if result.Correct == nil {
		return false, errors.Newf("judge response missing verdict: %s", truncate(resp.Content, 200))
	}
	return *result.Correct, nil
}
