package extract

import (
	"context"
	"log/slog"

	"github.com/jdkato/prose/v2"
)

// ProseAnalyzer segments and POS-tags text with the prose English models.
// Each sentence is tagged on its own so tokens never straddle a boundary.
type ProseAnalyzer struct{}

// Analyze implements Analyzer.
func (ProseAnalyzer) Analyze(ctx context.Context, text string) ([]Sentence, error) {
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
		sd, err := prose.NewDocument(s,
			prose.WithSegmentation(false),
			prose.WithExtraction(false),
		)
		if err != nil {
			slog.Debug("extract: tagging failed, skipping sentence", "sentence", i, "error", err)
			continue
		}
		sent := Sentence{ID: i, Text: s}
		for _, tok := range sd.Tokens() {
			sent.Tokens = append(sent.Tokens, Token{Text: tok.Text, Tag: tok.Tag, Index: idx})
			idx++
		}
		out = append(out, sent)
	}
	return out, nil
}
