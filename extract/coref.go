package extract

import (
	"context"
	"strings"

	"github.com/brunobiangulo/kgchat/preprocess"
)

type pronounClass int

const (
	notPronoun pronounClass = iota
	personal                // he, she and their object/possessive forms
	neuter                  // it, its
	plural                  // they, them, their
)

var pronouns = map[string]pronounClass{
	"he": personal, "him": personal, "his": personal, "himself": personal,
	"she": personal, "her": personal, "hers": personal, "herself": personal,
	"it": neuter, "its": neuter, "itself": neuter,
	"they": plural, "them": plural, "their": plural, "theirs": plural, "themselves": plural,
}

// antecedent is a candidate mention a later pronoun may refer to.
type antecedent struct {
	text   string
	plural bool
	proper bool
}

// HeuristicCoreferencer resolves third-person pronouns to the most recent
// compatible mention. With tagged tokens every noun run is a candidate; with
// untagged tokens only the first content word of each sentence is, as a
// stand-in for the sentence subject.
type HeuristicCoreferencer struct{}

// Resolve implements Coreferencer.
func (HeuristicCoreferencer) Resolve(_ context.Context, sentences []Sentence) (Resolution, error) {
	res := make(Resolution)
	var history []antecedent

	for _, s := range sentences {
		tagged := isTagged(s.Tokens)
		subjectSeen := false

		for i := 0; i < len(s.Tokens); i++ {
			tok := s.Tokens[i]
			lower := strings.ToLower(tok.Text)

			if class := pronouns[lower]; class != notPronoun {
				if a, ok := findAntecedent(history, class); ok {
					res[tok.Index] = []string{a.text}
				}
				continue
			}

			switch {
			case tagged && isNounTag(tok.Tag):
				// Join runs of nouns ("mahatma gandhi") into one mention.
				j := i
				for j+1 < len(s.Tokens) && isNounTag(s.Tokens[j+1].Tag) &&
					pronouns[strings.ToLower(s.Tokens[j+1].Text)] == notPronoun {
					j++
				}
				var parts []string
				for _, t := range s.Tokens[i : j+1] {
					parts = append(parts, t.Text)
				}
				last := s.Tokens[j].Tag
				history = append(history, antecedent{
					text:   strings.Join(parts, " "),
					plural: last == "NNS" || last == "NNPS",
					proper: strings.HasPrefix(last, "NNP"),
				})
				i = j
			case !tagged && !subjectSeen && preprocess.IsWord(tok.Text) && !preprocess.IsStopword(lower):
				history = append(history, antecedent{text: tok.Text, proper: true})
				subjectSeen = true
			}
		}
	}
	return res, nil
}

func findAntecedent(history []antecedent, class pronounClass) (antecedent, bool) {
	match := func(pred func(antecedent) bool) (antecedent, bool) {
		for i := len(history) - 1; i >= 0; i-- {
			if pred(history[i]) {
				return history[i], true
			}
		}
		return antecedent{}, false
	}

	switch class {
	case personal:
		return match(func(a antecedent) bool { return a.proper && !a.plural })
	case neuter:
		if a, ok := match(func(a antecedent) bool { return !a.proper && !a.plural }); ok {
			return a, true
		}
		return match(func(a antecedent) bool { return !a.plural })
	case plural:
		return match(func(a antecedent) bool { return a.plural })
	}
	return antecedent{}, false
}

func isTagged(toks []Token) bool {
	for _, t := range toks {
		if t.Tag != "" {
			return true
		}
	}
	return false
}

// MapCoreferencer resolves tokens through a fixed surface-form mapping,
// matched case-insensitively. It is useful for configured aliases and for
// deterministic pipelines.
type MapCoreferencer map[string][]string

// Resolve implements Coreferencer.
func (m MapCoreferencer) Resolve(_ context.Context, sentences []Sentence) (Resolution, error) {
	lower := make(map[string][]string, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	res := make(Resolution)
	for _, s := range sentences {
		for _, tok := range s.Tokens {
			if mentions, ok := lower[strings.ToLower(tok.Text)]; ok && len(mentions) > 0 {
				res[tok.Index] = mentions
			}
		}
	}
	return res, nil
}
