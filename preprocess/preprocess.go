// Package preprocess normalises free-text questions and node labels before
// they are matched against the knowledge graph.
package preprocess

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// SpellCorrector rewrites a preprocessed query. An empty return value means
// no usable correction was found.
type SpellCorrector interface {
	Correct(text string) string
}

// Preprocessor turns a raw query into its normalised form: lowercase, one
// trailing question mark removed, stopwords dropped, optionally spell
// corrected.
type Preprocessor struct {
	tokenizer Tokenizer
	stopwords map[string]bool
	speller   SpellCorrector
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithTokenizer replaces the default prose tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(p *Preprocessor) { p.tokenizer = t }
}

// WithStopwords replaces the default stopword set.
func WithStopwords(words map[string]bool) Option {
	return func(p *Preprocessor) { p.stopwords = words }
}

// WithSpellCorrector enables spelling correction of the joined query.
func WithSpellCorrector(s SpellCorrector) Option {
	return func(p *Preprocessor) { p.speller = s }
}

// New creates a Preprocessor.
func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{
		tokenizer: DefaultTokenizer,
		stopwords: englishStopwords,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Normalize applies Unicode NFKC normalisation and lowercasing.
func Normalize(text string) string {
	return cases.Lower(language.Und).String(norm.NFKC.String(text))
}

// Process returns the normalised query. The result may be empty when every
// token was a stopword.
func (p *Preprocessor) Process(query string) string {
	text := Normalize(strings.TrimSpace(query))
	text = strings.TrimSuffix(text, "?")

	var kept []string
	for _, tok := range p.tokenizer.Tokenize(text) {
		if p.stopwords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	joined := strings.Join(kept, " ")

	if p.speller == nil || joined == "" {
		return joined
	}
	if corrected := strings.TrimSpace(p.speller.Correct(joined)); corrected != "" {
		return corrected
	}
	return joined
}

// Terms returns the lowercase non-stopword word tokens of text, in order of
// first occurrence and without duplicates. Punctuation is dropped.
func (p *Preprocessor) Terms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range p.tokenizer.Tokenize(Normalize(text)) {
		if !IsWord(tok) || p.stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// Vocabulary collects the distinct terms of all labels, in first-seen order.
func (p *Preprocessor) Vocabulary(labels []string) []string {
	seen := make(map[string]bool)
	var vocab []string
	for _, l := range labels {
		for _, t := range p.Terms(l) {
			if !seen[t] {
				seen[t] = true
				vocab = append(vocab, t)
			}
		}
	}
	return vocab
}
