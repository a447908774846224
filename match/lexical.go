package match

import (
	"context"
	"sync"

	"github.com/brunobiangulo/kgchat/preprocess"
)

// LexicalMatcher scores nodes by the share of query terms they contain.
type LexicalMatcher struct {
	pre      *preprocess.Preprocessor
	minScore float64

	mu    sync.Mutex
	terms map[string]map[string]bool // node label -> term set
}

// NewLexicalMatcher creates a lexical matcher. Without WithMinScore the
// minimum is DefaultLexicalMinScore.
func NewLexicalMatcher(p *preprocess.Preprocessor, opts ...Option) *LexicalMatcher {
	if p == nil {
		p = preprocess.New()
	}
	o := buildOptions(opts)
	if !o.minScoreSet {
		o.minScore = DefaultLexicalMinScore
	}
	return &LexicalMatcher{
		pre:      p,
		minScore: o.minScore,
		terms:    make(map[string]map[string]bool),
	}
}

// Match implements Matcher.
func (m *LexicalMatcher) Match(_ context.Context, query string, nodes []string) (Result, error) {
	if len(nodes) == 0 {
		return Result{}, ErrNoMatchAvailable
	}

	q := m.pre.Terms(query)
	r := best(nodes, func(i int) float64 {
		return OverlapRatio(q, m.nodeTerms(nodes[i]))
	})
	r.Accepted = len(q) > 0 && r.Score >= m.minScore
	return r, nil
}

func (m *LexicalMatcher) nodeTerms(label string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.terms[label]; ok {
		return set
	}
	set := make(map[string]bool)
	for _, t := range m.pre.Terms(label) {
		set[t] = true
	}
	m.terms[label] = set
	return set
}

// OverlapRatio is |query ∩ node| / |query| over distinct query terms. It is 0
// for an empty query and always within [0, 1].
func OverlapRatio(query []string, node map[string]bool) float64 {
	distinct := make(map[string]bool, len(query))
	for _, t := range query {
		distinct[t] = true
	}
	if len(distinct) == 0 {
		return 0
	}
	hit := 0
	for t := range distinct {
		if node[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(distinct))
}
