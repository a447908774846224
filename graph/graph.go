// Package graph holds the knowledge graph: an ordered, directed multigraph
// whose nodes are identified by label and whose edges carry a relation.
//
// Nodes and edges are kept in insertion order so iteration, and therefore
// matching tie-breaks and persisted layouts, are reproducible. Two edges
// between the same ordered pair are both kept when their relations differ;
// an edge that repeats an existing (from, to, relation) is collapsed.
package graph

import "sync"

// Well-known relation labels.
const (
	RelationSynonym   = "Synonym"
	RelationHasAnswer = "has_answer"
)

// Edge is a directed, labelled edge. SentenceID and Sentence record where the
// fact was extracted from; they are empty for synonym and QA edges.
type Edge struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Relation   string `json:"relation"`
	SentenceID int    `json:"sentence_id,omitempty"`
	Sentence   string `json:"sentence,omitempty"`
}

type edgeKey struct {
	from, to, relation string
}

// Graph is safe for concurrent use. Readers never observe a half-added edge.
type Graph struct {
	mu    sync.RWMutex
	nodes []string
	index map[string]int
	edges []Edge
	out   map[string][]int // node -> positions in edges
	seen  map[edgeKey]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		out:   make(map[string][]int),
		seen:  make(map[edgeKey]bool),
	}
}

// AddNode adds a node and reports whether it was new. The empty label is
// never a node.
func (g *Graph) AddNode(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(label)
}

func (g *Graph) addNodeLocked(label string) bool {
	if label == "" {
		return false
	}
	if _, ok := g.index[label]; ok {
		return false
	}
	g.index[label] = len(g.nodes)
	g.nodes = append(g.nodes, label)
	return true
}

// AddEdge adds e, creating missing endpoints, and reports whether the edge
// was new. Edges with an empty endpoint are ignored.
func (g *Graph) AddEdge(e Edge) bool {
	if e.From == "" || e.To == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	k := edgeKey{e.From, e.To, e.Relation}
	if g.seen[k] {
		return false
	}
	g.addNodeLocked(e.From)
	g.addNodeLocked(e.To)
	g.seen[k] = true
	g.out[e.From] = append(g.out[e.From], len(g.edges))
	g.edges = append(g.edges, e)
	return true
}

// HasNode reports whether label is a node.
func (g *Graph) HasNode(label string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[label]
	return ok
}

// Nodes returns the node labels in insertion order.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.nodes...)
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

// OutEdges returns the edges leaving label in insertion order.
func (g *Graph) OutEdges(label string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx := g.out[label]
	out := make([]Edge, len(idx))
	for i, p := range idx {
		out[i] = g.edges[p]
	}
	return out
}

// EdgesBetween returns the parallel edges from one node to another.
func (g *Graph) EdgesBetween(from, to string) []Edge {
	var out []Edge
	for _, e := range g.OutEdges(from) {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
