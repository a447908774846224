// Package kgchat answers free-text questions from a knowledge graph.
//
// A Bot is built once from a Config: the graph is loaded from the store or
// constructed from a corpus (relation mode) or a question/answer dataset (QA
// mode), synonyms are added, and the result is saved. Each question is then
// preprocessed, matched to the closest node and resolved into an answer from
// that node's outgoing edges.
package kgchat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat/corpus"
	"github.com/brunobiangulo/kgchat/dataset"
	"github.com/brunobiangulo/kgchat/extract"
	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/llm"
	"github.com/brunobiangulo/kgchat/match"
	"github.com/brunobiangulo/kgchat/preprocess"
	"github.com/brunobiangulo/kgchat/resolve"
	"github.com/brunobiangulo/kgchat/store"
)

// Answer is the result of one question.
type Answer struct {
	Query     string          `json:"query"`
	Processed string          `json:"processed"`
	Text      string          `json:"text"`
	Outcome   resolve.Outcome `json:"outcome"`
	Node      string          `json:"matched_node,omitempty"`
	Score     float64         `json:"score"`
	Accepted  bool            `json:"accepted"`
	Triple    *resolve.Triple `json:"triple,omitempty"`
	Strategy  string          `json:"strategy"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

// Stats describes the bot's graph and store.
type Stats struct {
	Name  string         `json:"name"`
	Mode  string         `json:"mode"`
	Graph graph.Stats    `json:"graph"`
	Store *store.DBStats `json:"store"`
	// CachedEmbeddings counts the node vectors stored for the embedding model.
	CachedEmbeddings int               `json:"cached_embeddings"`
	Saved            []store.GraphInfo `json:"saved_graphs"`
}

// Bot answers questions from one knowledge graph. It is safe for concurrent
// use; the graph is read-only once New returns.
type Bot struct {
	cfg      Config
	name     string
	store    *store.Store
	cache    *store.EmbeddingCache
	graph    *graph.Graph
	nodes    []string
	pre      *preprocess.Preprocessor
	matcher  match.Matcher
	resolver *resolve.Resolver

	mu     sync.RWMutex
	closed bool
}

// New opens the store, loads or builds the graph and wires the query
// pipeline.
func New(ctx context.Context, cfg Config, opts ...Option) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.Store.EmbeddingDim)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}

	b, err := newBot(ctx, cfg, s, &o)
	if err != nil {
		s.Close()
		return nil, err
	}
	return b, nil
}

func newBot(ctx context.Context, cfg Config, s *store.Store, o *options) (*Bot, error) {
	b := &Bot{cfg: cfg, name: cfg.graphName(), store: s, cache: s.EmbeddingCache(cfg.Embedding.Model)}

	g, err := b.loadOrBuild(ctx, o)
	if err != nil {
		return nil, err
	}
	b.graph = g
	b.nodes = g.Nodes()

	b.pre = preprocess.New()
	if cfg.Spelling.Enabled {
		vocab := b.pre.Vocabulary(b.nodes)
		b.pre = preprocess.New(preprocess.WithSpellCorrector(
			preprocess.NewVocabularyCorrector(vocab, cfg.Spelling.MaxDistance)))
		slog.Debug("kgchat: spelling correction enabled", "vocabulary", len(vocab))
	}

	embedder := o.embedder
	if embedder == nil && cfg.Matcher.Strategy == match.StrategyEmbedding {
		p, err := llm.NewProvider(cfg.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, "creating embedding provider")
		}
		embedder = p
	}
	b.matcher, err = match.New(cfg.Matcher.Strategy, b.pre, embedder,
		match.WithMinScore(cfg.minScore()),
		match.WithCache(b.cache),
		match.WithBatchSize(cfg.Matcher.BatchSize),
		match.WithConcurrency(cfg.Matcher.Concurrency))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if em, ok := b.matcher.(*match.EmbeddingMatcher); ok && len(b.nodes) > 0 {
		start := time.Now()
		if err := em.Warm(ctx, b.nodes); err != nil {
			return nil, errors.Wrap(err, "embedding graph nodes")
		}
		slog.Info("kgchat: node embeddings ready",
			"nodes", len(b.nodes),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}

	synth := o.synth
	if synth == nil && cfg.Synthesis.Enabled {
		chat, err := b.chat(o)
		if err != nil {
			return nil, err
		}
		synth = resolve.NewLLMSynthesizer(chat, cfg.Chat.Model)
	}
	b.resolver = resolve.NewResolver(synth, cfg.Synthesis.Generation)

	return b, nil
}

// chat returns the injected chat provider or creates one from Config.
func (b *Bot) chat(o *options) (llm.Provider, error) {
	if o.chat != nil {
		return o.chat, nil
	}
	p, err := llm.NewProvider(b.cfg.Chat)
	if err != nil {
		return nil, errors.Wrap(err, "creating chat provider")
	}
	o.chat = p
	return p, nil
}

// loadOrBuild returns the saved graph unless a rebuild is requested or none
// is saved, in which case it builds, augments and saves a new one.
func (b *Bot) loadOrBuild(ctx context.Context, o *options) (*graph.Graph, error) {
	if !b.cfg.Graph.Rebuild {
		g, err := b.store.LoadGraph(ctx, b.name)
		if err == nil {
			slog.Info("kgchat: loaded graph",
				"name", b.name, "nodes", g.NodeCount(), "edges", g.EdgeCount())
			return g, nil
		}
		if !errors.Is(err, store.ErrGraphNotFound) {
			return nil, errors.Wrap(err, "loading graph")
		}
	}

	start := time.Now()
	var (
		g   *graph.Graph
		err error
	)
	switch b.cfg.Graph.Mode {
	case ModeQA:
		g, err = b.buildQA()
	default:
		g, err = b.buildRelations(ctx, o)
	}
	if err != nil {
		return nil, err
	}

	if path := b.cfg.Graph.SynonymsPath; path != "" {
		mapping, err := dataset.LoadSynonyms(path)
		if err != nil {
			return nil, err
		}
		added := g.AddSynonyms(mapping)
		slog.Info("kgchat: synonyms added", "edges", added)
	}

	if err := b.store.SaveGraph(ctx, b.name, g); err != nil {
		return nil, errors.Wrap(err, "saving graph")
	}
	slog.Info("kgchat: built graph",
		"name", b.name,
		"mode", b.cfg.Graph.Mode,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return g, nil
}

func (b *Bot) buildQA() (*graph.Graph, error) {
	records, err := dataset.LoadQA(b.cfg.Graph.QAPath)
	if err != nil {
		return nil, err
	}
	return graph.BuildQA(records), nil
}

func (b *Bot) buildRelations(ctx context.Context, o *options) (*graph.Graph, error) {
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = corpus.NewWikipediaFetcher(b.cfg.Corpus.WikipediaURL, b.cfg.Corpus.FetchTimeout)
	}
	text, err := corpus.NewSource(fetcher, o.loaders).Acquire(ctx, b.cfg.Corpus.Path, b.cfg.Corpus.Topic)
	if err != nil {
		return nil, err
	}

	ex, err := b.extractor(o)
	if err != nil {
		return nil, err
	}
	triples, err := ex.Extract(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "extracting relations")
	}

	var opts []graph.BuildOption
	if b.cfg.Graph.DominantFilter {
		opts = append(opts, graph.WithDominantFilter())
	}
	return graph.Build(triples, opts...), nil
}

func (b *Bot) extractor(o *options) (*extract.Extractor, error) {
	ec := b.cfg.Extraction

	analyzer := o.analyzer
	if analyzer == nil {
		if ec.Analyzer == "plain" {
			analyzer = extract.PlainAnalyzer{}
		} else {
			analyzer = extract.ProseAnalyzer{}
		}
	}

	clauses := o.clauses
	if clauses == nil {
		if ec.ClauseMatcher == "llm" {
			chat, err := b.chat(o)
			if err != nil {
				return nil, err
			}
			clauses = extract.NewLLMMatcher(chat, b.cfg.Chat.Model)
		} else {
			clauses = extract.PatternMatcher{}
		}
	}

	coref := o.coref
	if coref == nil && !o.noCoref {
		switch ec.Coreference {
		case "heuristic":
			coref = extract.HeuristicCoreferencer{}
		case "aliases":
			coref = extract.MapCoreferencer(ec.Aliases)
		}
	}
	return extract.NewExtractor(analyzer, clauses, coref), nil
}

// Ask answers one question. A question no node matches well enough gets the
// don't-know reply; only an empty graph or a failing embedding provider
// return an error.
func (b *Bot) Ask(ctx context.Context, question string) (*Answer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	processed := b.pre.Process(question)

	res, err := b.matcher.Match(ctx, processed, b.nodes)
	if err != nil {
		return nil, err
	}

	resp := resolve.Unknown()
	if res.Accepted {
		resp = b.resolver.Resolve(ctx, res.Node, b.graph)
	}

	a := &Answer{
		Query:     question,
		Processed: processed,
		Text:      resp.Text,
		Outcome:   resp.Outcome,
		Node:      res.Node,
		Score:     res.Score,
		Accepted:  res.Accepted,
		Triple:    resp.Triple,
		Strategy:  b.cfg.Matcher.Strategy,
		ElapsedMs: time.Since(start).Milliseconds(),
	}

	slog.Info("kgchat: answered",
		"node", a.Node,
		"score", a.Score,
		"accepted", a.Accepted,
		"outcome", a.Outcome,
		"elapsed", time.Since(start).Round(time.Millisecond))

	if b.cfg.Store.LogQueries {
		if err := b.store.LogQuery(ctx, store.QueryLog{
			Graph:     b.name,
			Query:     a.Query,
			Processed: a.Processed,
			Node:      a.Node,
			Score:     a.Score,
			Accepted:  a.Accepted,
			Outcome:   string(a.Outcome),
			Answer:    a.Text,
			Strategy:  a.Strategy,
			ElapsedMS: a.ElapsedMs,
		}); err != nil {
			slog.Warn("kgchat: query log write failed", "error", err)
		}
	}
	return a, nil
}

// Name returns the graph's name in the store.
func (b *Bot) Name() string { return b.name }

// Graph returns the bot's graph. Callers must not modify it.
func (b *Bot) Graph() *graph.Graph { return b.graph }

// Stats returns graph and store counts.
func (b *Bot) Stats(ctx context.Context) (*Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	db, err := b.store.DBStats(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := b.cache.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "counting cached embeddings")
	}
	saved, err := b.store.ListGraphs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing graphs")
	}
	return &Stats{
		Name:             b.name,
		Mode:             b.cfg.Graph.Mode,
		Graph:            b.graph.Stats(),
		Store:            db,
		CachedEmbeddings: cached,
		Saved:            saved,
	}, nil
}

// RecentQueries returns up to limit query log entries for this bot's graph,
// newest first.
func (b *Bot) RecentQueries(ctx context.Context, limit int) ([]store.QueryLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.store.RecentQueries(ctx, b.name, limit)
}

// Close releases the store. Asking a closed bot returns ErrClosed.
func (b *Bot) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.store.Close()
}

// ListGraphs returns the graphs saved in the store cfg points at.
func ListGraphs(ctx context.Context, cfg Config) ([]store.GraphInfo, error) {
	s, err := store.New(cfg.resolveDBPath(), cfg.Store.EmbeddingDim)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	defer s.Close()
	return s.ListGraphs(ctx)
}

// DeleteGraph removes a saved graph so the next bot using it builds afresh.
// Its query log is kept.
func DeleteGraph(ctx context.Context, cfg Config, name string) error {
	s, err := store.New(cfg.resolveDBPath(), cfg.Store.EmbeddingDim)
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	defer s.Close()
	if err := s.DeleteGraph(ctx, name); err != nil {
		return err
	}
	slog.Info("kgchat: graph deleted", "name", name)
	return nil
}
