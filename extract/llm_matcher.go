package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kaptinlin/jsonrepair"

	"github.com/brunobiangulo/kgchat/llm"
)

// clauseExtractionPrompt asks for subject-verb-object clauses using only
// words of the sentence so the result can be mapped back onto its tokens.
const clauseExtractionPrompt = `You are a relation extraction engine.
Given one sentence, list every subject-verb-object clause it states.

Return a JSON object with exactly one key:
  "clauses" : array of {"subject": string, "verb": string, "object": string}

Rules:
- Copy words exactly as they appear in the sentence; do not paraphrase.
- Keep pronouns as written (he, she, it, they); do not resolve them.
- Leave out determiners (a, an, the) from subject and object.
- The verb holds only the verb words, without adverbs such as "not".
- If there are none, return an empty array.
- Do NOT include any text outside the JSON object.

EXAMPLES:

Input: "gandhi led the salt march and inspired millions."
Output:
{"clauses": [{"subject": "gandhi", "verb": "led", "object": "salt march"}, {"subject": "gandhi", "verb": "inspired", "object": "millions"}]}

Input: "she has written two novels."
Output:
{"clauses": [{"subject": "she", "verb": "has written", "object": "two novels"}]}

SENTENCE:
%s`

// LLMMatcher finds clauses by asking a chat model. It works on untagged
// sentences, so it is the usual partner of PlainAnalyzer.
type LLMMatcher struct {
	chat  llm.Provider
	model string
}

// NewLLMMatcher creates a matcher backed by chat. An empty model uses the
// provider default.
func NewLLMMatcher(chat llm.Provider, model string) *LLMMatcher {
	return &LLMMatcher{chat: chat, model: model}
}

type llmClause struct {
	Subject string `json:"subject"`
	Verb    string `json:"verb"`
	Object  string `json:"object"`
}

type clauseResult struct {
	Clauses []llmClause `json:"clauses"`
}

// Match implements ClauseMatcher.
func (m *LLMMatcher) Match(ctx context.Context, s Sentence) ([]Clause, error) {
	resp, err := m.chat.Chat(ctx, llm.ChatRequest{
		Model: m.model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(clauseExtractionPrompt, s.Text)},
		},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "clause extraction for sentence %d", s.ID)
	}

	var result clauseResult
	if err := decodeJSON(resp.Content, &result); err != nil {
		return nil, errors.Wrapf(err, "parsing clauses for sentence %d", s.ID)
	}

	used := make(map[int]bool)
	var clauses []Clause
	for _, c := range result.Clauses {
		cl := Clause{
			Subject: alignWords(s.Tokens, c.Subject, used),
			Verb:    alignWords(s.Tokens, c.Verb, used),
			Object:  alignWords(s.Tokens, c.Object, used),
		}
		if len(cl.Subject) == 0 || len(cl.Verb) == 0 || len(cl.Object) == 0 {
			continue
		}
		clauses = append(clauses, cl)
	}
	return clauses, nil
}

// alignWords maps each word of phrase onto the first unused sentence token
// with the same text. Words the model invented become tokens with Index -1,
// which coreference leaves untouched. Tokens may be reused across clauses
// because a subject is often shared by coordinated verbs.
func alignWords(toks []Token, phrase string, used map[int]bool) []Token {
	var out []Token
	taken := make(map[int]bool)
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		w = strings.Trim(w, ".,;:!?\"")
		if w == "" {
			continue
		}
		found, fallback := -1, -1
		for i, t := range toks {
			if taken[i] || strings.ToLower(t.Text) != w {
				continue
			}
			if !used[i] {
				found = i
				break
			}
			if fallback < 0 {
				fallback = i
			}
		}
		if found < 0 {
			found = fallback
		}
		if found < 0 {
			out = append(out, Token{Text: w, Index: -1})
			continue
		}
		taken[found] = true
		used[found] = true
		out = append(out, toks[found])
	}
	return out
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON attempts to find a JSON object in the LLM response text,
// handling markdown code blocks and text before or after the object.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", errors.New("no JSON object found in response")
}

// decodeJSON unmarshals model output, repairing truncated or sloppy JSON
// before giving up.
func decodeJSON(raw string, out any) error {
	obj, err := extractJSON(raw)
	if err != nil {
		// A response cut off by the token limit may lack the closing brace.
		obj = strings.TrimSpace(raw)
		if !strings.HasPrefix(obj, "{") {
			return err
		}
	}
	if err := json.Unmarshal([]byte(obj), out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return errors.Wrap(err, "json repair failed")
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return errors.Wrap(err, "unmarshal failed after repair")
	}
	return nil
}
