package preprocess

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// minCorrectableLen keeps short tokens (ids, abbreviations) untouched.
const minCorrectableLen = 4

// VocabularyCorrector corrects each unknown token of a query to the closest
// known word by Levenshtein distance.
type VocabularyCorrector struct {
	vocab       []string
	known       map[string]bool
	maxDistance int
}

// NewVocabularyCorrector builds a corrector over words. maxDistance <= 0
// defaults to 2.
func NewVocabularyCorrector(words []string, maxDistance int) *VocabularyCorrector {
	if maxDistance <= 0 {
		maxDistance = 2
	}
	c := &VocabularyCorrector{
		known:       make(map[string]bool, len(words)),
		maxDistance: maxDistance,
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || c.known[w] {
			continue
		}
		c.known[w] = true
		c.vocab = append(c.vocab, w)
	}
	return c
}

// Correct rewrites tokens that are not in the vocabulary. Ties on distance
// keep the word that appears first in the vocabulary.
func (c *VocabularyCorrector) Correct(text string) string {
	fields := strings.Fields(text)
	for i, tok := range fields {
		if c.known[tok] || len([]rune(tok)) < minCorrectableLen || !isAlpha(tok) {
			continue
		}
		best, bestDist := "", c.maxDistance+1
		for _, w := range c.vocab {
			d := fuzzy.LevenshteinDistance(tok, w)
			if d < bestDist {
				best, bestDist = w, d
			}
		}
		if best != "" {
			fields[i] = best
		}
	}
	return strings.Join(fields, " ")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
