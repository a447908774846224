// Package extract turns corpus text into subject-relation-object triples.
//
// An Extractor chains three capabilities: an Analyzer that segments and
// tokenizes the text, a ClauseMatcher that finds subject-verb-object spans
// per sentence, and an optional Coreferencer whose chains replace pronouns
// and aliases with their antecedent mentions.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat/preprocess"
)

// Extractor runs the extraction pipeline.
type Extractor struct {
	analyzer Analyzer
	matcher  ClauseMatcher
	coref    Coreferencer
}

// NewExtractor creates an Extractor. coref may be nil, in which case every
// token stands for itself.
func NewExtractor(a Analyzer, m ClauseMatcher, coref Coreferencer) *Extractor {
	return &Extractor{analyzer: a, matcher: m, coref: coref}
}

// Extract returns the triples found in text, in sentence order. A text with
// no recognisable clause yields no triples and no error.
func (e *Extractor) Extract(ctx context.Context, text string) ([]Triple, error) {
	start := time.Now()

	sentences, err := e.analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "analyzing corpus")
	}

	res := Resolution{}
	if e.coref != nil {
		res, err = e.coref.Resolve(ctx, sentences)
		if err != nil {
			return nil, errors.Wrap(err, "resolving coreference")
		}
	}

	var (
		triples []Triple
		skipped int
	)
	for _, s := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clauses, err := e.matcher.Match(ctx, s)
		if err != nil {
			slog.Debug("extract: clause matching failed, skipping sentence",
				"sentence", s.ID, "error", err)
			skipped++
			continue
		}
		for _, c := range clauses {
			triples = append(triples, Triple{
				SentenceID: s.ID,
				Sentence:   s.Text,
				Subject:    canonical(c.Subject, res),
				Relation:   preprocess.Normalize(joinText(c.Verb)),
				Object:     canonical(c.Object, res),
			})
		}
	}

	slog.Info("extract: done",
		"sentences", len(sentences),
		"triples", len(triples),
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return triples, nil
}

// canonical replaces every token of span by its resolved mentions, joins the
// result with single spaces and lowercases it.
func canonical(span []Token, res Resolution) string {
	var parts []string
	for _, tok := range span {
		parts = append(parts, res.Resolve(tok)...)
	}
	return preprocess.Normalize(strings.Join(parts, " "))
}

func joinText(span []Token) string {
	parts := make([]string, len(span))
	for i, t := range span {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}
