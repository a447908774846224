package graph

import (
	"log/slog"
	"strings"

	"github.com/brunobiangulo/kgchat/extract"
)

type buildOptions struct {
	dominant bool
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithDominantFilter keeps only the triples that involve the most frequent
// entity. The result is that entity's ego network: relations between other
// entities are discarded.
func WithDominantFilter() BuildOption {
	return func(o *buildOptions) { o.dominant = true }
}

// Build creates a graph from triples in order. Zero triples give an empty
// graph.
func Build(triples []extract.Triple, opts ...BuildOption) *Graph {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.dominant {
		var entity string
		triples, entity = FilterDominant(triples)
		slog.Info("graph: dominant entity filter", "entity", entity, "kept", len(triples))
	}

	g := New()
	for _, t := range triples {
		subj := strings.TrimSpace(t.Subject)
		obj := strings.TrimSpace(t.Object)
		if subj == "" || obj == "" {
			continue
		}
		g.AddEdge(Edge{
			From:       subj,
			To:         obj,
			Relation:   t.Relation,
			SentenceID: t.SentenceID,
			Sentence:   t.Sentence,
		})
	}
	return g
}

// DominantEntity returns the subject or object string that occurs most often
// across triples, compared after trimming as Build does. Ties go to the
// entity seen first.
func DominantEntity(triples []extract.Triple) (string, bool) {
	counts := make(map[string]int)
	var order []string
	note := func(s string) {
		if s = strings.TrimSpace(s); s == "" {
			return
		}
		if _, ok := counts[s]; !ok {
			order = append(order, s)
		}
		counts[s]++
	}
	for _, t := range triples {
		note(t.Subject)
		note(t.Object)
	}

	best, bestCount := "", 0
	for _, s := range order {
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best, bestCount > 0
}

// FilterDominant keeps the triples in which the dominant entity is subject
// or object, and returns them with that entity.
func FilterDominant(triples []extract.Triple) ([]extract.Triple, string) {
	entity, ok := DominantEntity(triples)
	if !ok {
		return nil, ""
	}
	var kept []extract.Triple
	for _, t := range triples {
		if strings.TrimSpace(t.Subject) == entity || strings.TrimSpace(t.Object) == entity {
			kept = append(kept, t)
		}
	}
	return kept, entity
}

// QA is a question with its answer.
type QA struct {
	Question string `json:"Question" yaml:"Question"`
	Answer   string `json:"Answer" yaml:"Answer"`
}

// BuildQA creates a bipartite graph linking every question to its answer
// with a has_answer edge.
func BuildQA(records []QA) *Graph {
	g := New()
	for _, r := range records {
		q := strings.TrimSpace(r.Question)
		a := strings.TrimSpace(r.Answer)
		if q == "" || a == "" {
			continue
		}
		g.AddEdge(Edge{From: q, To: a, Relation: RelationHasAnswer})
	}
	return g
}
