package kgchat

import (
	"github.com/brunobiangulo/kgchat/corpus"
	"github.com/brunobiangulo/kgchat/extract"
	"github.com/brunobiangulo/kgchat/llm"
	"github.com/brunobiangulo/kgchat/match"
	"github.com/brunobiangulo/kgchat/resolve"
)

// Option injects a capability into New in place of the one built from
// Config.
type Option func(*options)

type options struct {
	chat     llm.Provider
	embedder match.Embedder
	fetcher  corpus.Fetcher
	loaders  *corpus.Registry
	analyzer extract.Analyzer
	clauses  extract.ClauseMatcher
	coref    extract.Coreferencer
	noCoref  bool
	synth    resolve.Synthesizer
}

// WithChat sets the chat provider used for LLM clause matching and sentence
// synthesis.
func WithChat(p llm.Provider) Option {
	return func(o *options) { o.chat = p }
}

// WithEmbedder sets the embedding capability of the embedding matcher.
func WithEmbedder(e match.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithFetcher replaces the Wikipedia fetcher used when the corpus is missing.
func WithFetcher(f corpus.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithLoaders replaces the corpus file loaders.
func WithLoaders(r *corpus.Registry) Option {
	return func(o *options) { o.loaders = r }
}

// WithAnalyzer replaces the sentence analyzer.
func WithAnalyzer(a extract.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithClauseMatcher replaces the clause matcher.
func WithClauseMatcher(m extract.ClauseMatcher) Option {
	return func(o *options) { o.clauses = m }
}

// WithCoreferencer replaces the coreference resolver. A nil resolver turns
// coreference off.
func WithCoreferencer(c extract.Coreferencer) Option {
	return func(o *options) {
		o.coref = c
		o.noCoref = c == nil
	}
}

// WithSynthesizer replaces the sentence synthesizer.
func WithSynthesizer(s resolve.Synthesizer) Option {
	return func(o *options) { o.synth = s }
}
