// Package match selects the graph node closest to a preprocessed query.
//
// Two strategies sit behind the Matcher interface: embedding similarity and
// lexical overlap. Both score every node in the order given and keep the
// first node with the highest score.
package match

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat/preprocess"
)

// Strategy names accepted by New.
const (
	StrategyEmbedding = "embedding"
	StrategyLexical   = "lexical"
)

// DefaultLexicalMinScore is the overlap ratio a lexical match needs.
const DefaultLexicalMinScore = 0.5

var (
	// ErrNoMatchAvailable is returned when there are no nodes to match.
	ErrNoMatchAvailable = errors.New("no match available: graph has no nodes")
	// ErrEmbeddingFailed marks failures of the embedding capability. There is
	// no fallback similarity, so it always reaches the caller.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// Result is the best-scoring node. Accepted reports whether Score reached the
// matcher's minimum; callers answer "don't know" otherwise.
type Result struct {
	Node     string  `json:"node"`
	Score    float64 `json:"score"`
	Accepted bool    `json:"accepted"`
}

// Matcher scores query against nodes. nodes must be in a stable order; ties
// go to the earliest node.
type Matcher interface {
	Match(ctx context.Context, query string, nodes []string) (Result, error)
}

type options struct {
	minScore    float64
	minScoreSet bool
	cache       Cache
	batchSize   int
	concurrency int
}

// Option configures a matcher.
type Option func(*options)

// WithMinScore sets the minimum accepted score.
func WithMinScore(s float64) Option {
	return func(o *options) { o.minScore, o.minScoreSet = s, true }
}

// WithCache sets the node embedding cache. The default is a MemoryCache.
func WithCache(c Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithBatchSize sets how many labels are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithConcurrency bounds the number of embedding calls in flight while
// warming the cache.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

func buildOptions(opts []Option) options {
	o := options{batchSize: 64, concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		o.batchSize = 64
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	return o
}

// New creates the matcher named by strategy. emb is only needed for the
// embedding strategy.
func New(strategy string, p *preprocess.Preprocessor, emb Embedder, opts ...Option) (Matcher, error) {
	switch strategy {
	case StrategyLexical:
		return NewLexicalMatcher(p, opts...), nil
	case StrategyEmbedding:
		if emb == nil {
			return nil, errors.New("embedding strategy needs an embedder")
		}
		return NewEmbeddingMatcher(emb, opts...), nil
	default:
		return nil, errors.Newf("unknown match strategy %q", strategy)
	}
}

// best returns the first node with the highest score.
func best(nodes []string, score func(i int) float64) Result {
	r := Result{Node: nodes[0], Score: score(0)}
	for i := 1; i < len(nodes); i++ {
		if s := score(i); s > r.Score {
			r.Node, r.Score = nodes[i], s
		}
	}
	return r
}
