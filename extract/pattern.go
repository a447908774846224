package extract

import (
	"context"
	"strings"
)

// PatternMatcher finds subject-verb-object clauses from Penn Treebank tags:
// a noun phrase, a verb group, then a noun phrase. Determiners are dropped
// from both noun phrases. A verb group directly after a coordinating
// conjunction reuses the previous subject ("x led a and inspired b").
type PatternMatcher struct{}

// Match implements ClauseMatcher.
func (PatternMatcher) Match(_ context.Context, s Sentence) ([]Clause, error) {
	toks := s.Tokens
	var (
		clauses     []Clause
		lastSubject []Token
	)

	for i := 0; i < len(toks); {
		if !isVerbTag(toks[i].Tag) {
			i++
			continue
		}

		end := i
		for end < len(toks) && (isVerbTag(toks[end].Tag) || toks[end].Tag == "RP" ||
			(isAdverbTag(toks[end].Tag) && end+1 < len(toks) && isVerbTag(toks[end+1].Tag))) {
			end++
		}
		verb := toks[i:end]

		subject := nounPhraseBefore(toks, i)
		if len(subject) == 0 && i > 0 && toks[i-1].Tag == "CC" {
			subject = lastSubject
		}
		object := nounPhraseAfter(toks, end)

		if hasHead(subject) && hasHead(object) {
			clauses = append(clauses, Clause{
				Subject: subject,
				Verb:    verbOnly(verb),
				Object:  object,
			})
		}
		if hasHead(subject) {
			lastSubject = subject
		}
		i = end
	}
	return clauses, nil
}

// nounPhraseBefore collects the noun phrase that ends right before pos.
func nounPhraseBefore(toks []Token, pos int) []Token {
	start := pos
	for start > 0 && (isPhraseTag(toks[start-1].Tag) || isDeterminerTag(toks[start-1].Tag)) {
		start--
	}
	return dropDeterminers(toks[start:pos])
}

// nounPhraseAfter collects the noun phrase that starts at pos.
func nounPhraseAfter(toks []Token, pos int) []Token {
	end := pos
	for end < len(toks) && (isPhraseTag(toks[end].Tag) || isDeterminerTag(toks[end].Tag)) {
		end++
	}
	return dropDeterminers(toks[pos:end])
}

func dropDeterminers(span []Token) []Token {
	var out []Token
	for _, t := range span {
		if !isDeterminerTag(t.Tag) {
			out = append(out, t)
		}
	}
	return out
}

// verbOnly strips adverbs such as "not" from a verb group unless the group
// would become empty.
func verbOnly(group []Token) []Token {
	var out []Token
	for _, t := range group {
		if !isAdverbTag(t.Tag) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return group
	}
	return out
}

func hasHead(span []Token) bool {
	for _, t := range span {
		if isNounTag(t.Tag) || t.Tag == "PRP" {
			return true
		}
	}
	return false
}

func isVerbTag(tag string) bool {
	return strings.HasPrefix(tag, "VB") || tag == "MD"
}

func isNounTag(tag string) bool {
	return strings.HasPrefix(tag, "NN")
}

func isAdverbTag(tag string) bool {
	return strings.HasPrefix(tag, "RB")
}

func isDeterminerTag(tag string) bool {
	return tag == "DT" || tag == "PDT"
}

// isPhraseTag reports whether a tag can be part of a noun phrase.
func isPhraseTag(tag string) bool {
	switch {
	case isNounTag(tag), strings.HasPrefix(tag, "JJ"):
		return true
	}
	switch tag {
	case "PRP", "PRP$", "CD", "POS":
		return true
	}
	return false
}
