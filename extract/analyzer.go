package extract

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jdkato/prose/v2"

	"github.com/brunobiangulo/kgchat/preprocess"
)

// PlainAnalyzer segments and tokenizes with prose but loads no tagging
// model. Tokens are left untagged, so it pairs with LLMMatcher rather than
// PatternMatcher.
type PlainAnalyzer struct{}

// Analyze implements Analyzer.
func (PlainAnalyzer) Analyze(ctx context.Context, text string) ([]Sentence, error) {
	sentences, err := SplitSentences(text)
	if err != nil {
		return nil, err
	}

	var (
		out []Sentence
		idx int
	)
	for i, s := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sent := Sentence{ID: i, Text: s}
		for _, tok := range preprocess.Tokenize(s) {
			sent.Tokens = append(sent.Tokens, Token{Text: tok, Index: idx})
			idx++
		}
		out = append(out, sent)
	}
	return out, nil
}

// SplitSentences segments text with the prose Punkt model. Sentences are
// trimmed and empty ones dropped.
func SplitSentences(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, errors.Wrap(err, "segmenting corpus")
	}
	var out []string
	for _, s := range doc.Sentences() {
		if s.Text != "" {
			out = append(out, s.Text)
		}
	}
	return out, nil
}
