// Package resolve turns a matched graph node into the chatbot's answer.
package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/kgchat/graph"
)

// Fixed conversational replies.
const (
	DontKnow        = "Sorry, I don't have information about that question."
	Apology         = "I'm sorry, but I couldn't find an answer to your question."
	Farewell        = "Thank you for using the chatbot. Goodbye!"
	NoKnowledgeBase = "Cannot find local file, no knowledge base found."
)

// Outcome says which path produced a Response.
type Outcome string

const (
	OutcomeAnswer      Outcome = "answer"      // has_answer target of a QA graph
	OutcomeSynthesized Outcome = "synthesized" // sentence generated from a triple
	OutcomeTriple      Outcome = "triple"      // raw triple text
	OutcomeApology     Outcome = "apology"     // no node or no outgoing edge
	OutcomeUnknown     Outcome = "unknown"     // match below the acceptance threshold
)

// Triple is the ordered (subject, relation, object) handed to synthesis.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// String joins the triple fields with spaces.
func (t Triple) String() string {
	return strings.Join([]string{t.Subject, t.Relation, t.Object}, " ")
}

// Response is a resolved answer.
type Response struct {
	Text    string  `json:"text"`
	Outcome Outcome `json:"outcome"`
	// Triple is set when the answer came from a relation edge.
	Triple *Triple `json:"triple,omitempty"`
}

// Unknown is the response for a query no node matched well enough.
func Unknown() Response {
	return Response{Text: DontKnow, Outcome: OutcomeUnknown}
}

// Synthesizer phrases a triple as a sentence.
type Synthesizer interface {
	Synthesize(ctx context.Context, t Triple, cfg GenerationConfig) (string, error)
}

// Resolver answers from the edges leaving a matched node.
type Resolver struct {
	synth Synthesizer
	gen   GenerationConfig
}

// NewResolver creates a Resolver. synth may be nil, in which case relation
// answers are the raw triple text.
func NewResolver(synth Synthesizer, gen GenerationConfig) *Resolver {
	return &Resolver{synth: synth, gen: gen}
}

// Resolve never fails: every path ends in an answer.
//
// A has_answer edge wins, which is how QA graphs answer. Otherwise the first
// outgoing edge is phrased by the synthesizer, or returned as raw text when
// synthesis is unavailable. A node without outgoing edges, or no node at
// all, gets the apology.
func (r *Resolver) Resolve(ctx context.Context, node string, g *graph.Graph) Response {
	if node == "" || g == nil {
		return Response{Text: Apology, Outcome: OutcomeApology}
	}

	out := g.OutEdges(node)
	if len(out) == 0 {
		return Response{Text: Apology, Outcome: OutcomeApology}
	}
	for _, e := range out {
		if e.Relation == graph.RelationHasAnswer {
			return Response{Text: e.To, Outcome: OutcomeAnswer}
		}
	}

	e := out[0]
	t := Triple{Subject: e.From, Relation: e.Relation, Object: e.To}
	if r.synth != nil {
		text, err := r.synth.Synthesize(ctx, t, r.gen)
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return Response{Text: text, Outcome: OutcomeSynthesized, Triple: &t}
		}
		slog.Warn("resolve: synthesis failed, answering with raw triple",
			"node", node, "error", err)
	}
	return Response{Text: t.String(), Outcome: OutcomeTriple, Triple: &t}
}
