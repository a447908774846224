package extract

import "context"

// Token is a single token of an analysed document. Index is the position of
// the token in the whole document so coreference can address it; tokens that
// do not come from the document (see LLMMatcher) carry Index -1.
type Token struct {
	Text  string `json:"text"`
	Tag   string `json:"tag,omitempty"` // Penn Treebank tag, empty when untagged
	Index int    `json:"index"`
}

// Sentence is one sentence of an analysed document.
type Sentence struct {
	ID     int     `json:"id"`
	Text   string  `json:"text"`
	Tokens []Token `json:"tokens"`
}

// Clause is a subject-verb-object pattern found in a sentence.
type Clause struct {
	Subject []Token
	Verb    []Token
	Object  []Token
}

// Triple is an extracted (subject, relation, object) fact with the sentence
// it came from.
type Triple struct {
	SentenceID int    `json:"sentence_id"`
	Sentence   string `json:"sentence_text"`
	Subject    string `json:"subject"`
	Relation   string `json:"relation"`
	Object     string `json:"object"`
}

// Analyzer splits text into sentences of tokens.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]Sentence, error)
}

// ClauseMatcher finds subject-verb-object clauses in a sentence. Returning no
// clause is not an error.
type ClauseMatcher interface {
	Match(ctx context.Context, s Sentence) ([]Clause, error)
}

// Coreferencer computes coreference chains over a whole document.
type Coreferencer interface {
	Resolve(ctx context.Context, sentences []Sentence) (Resolution, error)
}

// Resolution maps document token indexes to the mentions they refer to.
type Resolution map[int][]string

// Resolve returns the mentions a token stands for, or the token text itself
// when it is not part of a chain. The returned slice is freshly allocated so
// callers may keep or modify it.
func (r Resolution) Resolve(tok Token) []string {
	if tok.Index >= 0 {
		if m, ok := r[tok.Index]; ok && len(m) > 0 {
			return append([]string(nil), m...)
		}
	}
	return []string{tok.Text}
}
