package preprocess

import (
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// Tokenizer splits text into tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(text string) []string

func (f TokenizerFunc) Tokenize(text string) []string { return f(text) }

// DefaultTokenizer is the prose tokenizer used when none is injected.
var DefaultTokenizer Tokenizer = TokenizerFunc(Tokenize)

// Tokenize splits text into word, number and punctuation tokens with the
// prose tokenizer. Clitics are split off the word they attach to
// ("gandhi's" -> "gandhi" "'s", "don't" -> "do" "n't"), trailing punctuation
// becomes its own token and decimal numbers stay whole. No tagging model is
// loaded.
func Tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return strings.Fields(text)
	}
	var tokens []string
	for _, tok := range doc.Tokens() {
		tokens = append(tokens, tok.Text)
	}
	return tokens
}

// IsWord reports whether tok contains at least one letter or digit.
func IsWord(tok string) bool {
	return strings.IndexFunc(tok, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
