package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/kgchat/corpus"
	"github.com/brunobiangulo/kgchat/llm"
)

// taggedAnalyzer returns pre-tagged sentences, standing in for a POS tagger.
type taggedAnalyzer struct {
	sentences [][][2]string // sentence -> tokens -> {text, tag}
}

func (a taggedAnalyzer) Analyze(_ context.Context, _ string) ([]Sentence, error) {
	var out []Sentence
	idx := 0
	for i, toks := range a.sentences {
		s := Sentence{ID: i}
		var words []string
		for _, tt := range toks {
			s.Tokens = append(s.Tokens, Token{Text: tt[0], Tag: tt[1], Index: idx})
			words = append(words, tt[0])
			idx++
		}
		s.Text = strings.Join(words, " ")
		out = append(out, s)
	}
	return out, nil
}

var gandhiSentences = taggedAnalyzer{sentences: [][][2]string{
	{{"gandhi", "NNP"}, {"led", "VBD"}, {"the", "DT"}, {"movement", "NN"}, {".", "."}},
	{{"he", "PRP"}, {"inspired", "VBD"}, {"millions", "NNS"}, {".", "."}},
}}

func spo(triples []Triple) [][3]string {
	var out [][3]string
	for _, t := range triples {
		out = append(out, [3]string{t.Subject, t.Relation, t.Object})
	}
	return out
}

func TestExtractGandhiWithMappedCoreference(t *testing.T) {
	ex := NewExtractor(gandhiSentences, PatternMatcher{}, MapCoreferencer{"He": {"gandhi"}})

	triples, err := ex.Extract(context.Background(), "gandhi led the movement. he inspired millions.")
	require.NoError(t, err)
	assert.Equal(t, [][3]string{
		{"gandhi", "led", "movement"},
		{"gandhi", "inspired", "millions"},
	}, spo(triples))

	assert.Equal(t, 0, triples[0].SentenceID)
	assert.Equal(t, 1, triples[1].SentenceID)
	assert.Equal(t, "he inspired millions .", triples[1].Sentence)
}

func TestExtractGandhiWithHeuristicCoreference(t *testing.T) {
	ex := NewExtractor(gandhiSentences, PatternMatcher{}, HeuristicCoreferencer{})

	triples, err := ex.Extract(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, [][3]string{
		{"gandhi", "led", "movement"},
		{"gandhi", "inspired", "millions"},
	}, spo(triples))
}

func TestExtractWithoutCoreference(t *testing.T) {
	ex := NewExtractor(gandhiSentences, PatternMatcher{}, nil)

	triples, err := ex.Extract(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, "he", triples[1].Subject)
}

func TestExtractNoClausesIsNotAnError(t *testing.T) {
	a := taggedAnalyzer{sentences: [][][2]string{{{"hello", "UH"}, {".", "."}}}}
	triples, err := NewExtractor(a, PatternMatcher{}, nil).Extract(context.Background(), "hello.")
	require.NoError(t, err)
	assert.Empty(t, triples)
}

type failingMatcher struct {
	failOn int
	next   ClauseMatcher
}

func (m failingMatcher) Match(ctx context.Context, s Sentence) ([]Clause, error) {
	if s.ID == m.failOn {
		return nil, errors.New("model unavailable")
	}
	return m.next.Match(ctx, s)
}

func TestExtractSkipsFailedSentences(t *testing.T) {
	ex := NewExtractor(gandhiSentences, failingMatcher{failOn: 0, next: PatternMatcher{}}, HeuristicCoreferencer{})

	triples, err := ex.Extract(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"gandhi", "inspired", "millions"}}, spo(triples))
}

func TestPatternMatcher(t *testing.T) {
	tests := []struct {
		name string
		toks [][2]string
		want [][3]string
	}{
		{
			name: "coordinated verbs share the subject",
			toks: [][2]string{
				{"gandhi", "NNP"}, {"led", "VBD"}, {"the", "DT"}, {"march", "NN"},
				{"and", "CC"}, {"inspired", "VBD"}, {"millions", "NNS"},
			},
			want: [][3]string{{"gandhi", "led", "march"}, {"gandhi", "inspired", "millions"}},
		},
		{
			name: "adverbs dropped from the verb group",
			toks: [][2]string{
				{"he", "PRP"}, {"did", "VBD"}, {"not", "RB"}, {"lead", "VB"}, {"the", "DT"}, {"army", "NN"},
			},
			want: [][3]string{{"he", "did lead", "army"}},
		},
		{
			name: "adjectives kept in noun phrases",
			toks: [][2]string{
				{"the", "DT"}, {"indian", "JJ"}, {"congress", "NNP"}, {"adopted", "VBD"},
				{"a", "DT"}, {"new", "JJ"}, {"constitution", "NN"},
			},
			want: [][3]string{{"indian congress", "adopted", "new constitution"}},
		},
		{
			name: "intransitive verb yields nothing",
			toks: [][2]string{{"gandhi", "NNP"}, {"died", "VBD"}, {"in", "IN"}, {"1948", "CD"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := taggedAnalyzer{sentences: [][][2]string{tt.toks}}.Analyze(context.Background(), "")
			clauses, err := PatternMatcher{}.Match(context.Background(), s[0])
			require.NoError(t, err)

			var got [][3]string
			for _, c := range clauses {
				got = append(got, [3]string{joinText(c.Subject), joinText(c.Verb), joinText(c.Object)})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicCoreferencer(t *testing.T) {
	a := taggedAnalyzer{sentences: [][][2]string{
		{{"mahatma", "NNP"}, {"gandhi", "NNP"}, {"founded", "VBD"}, {"an", "DT"}, {"ashram", "NN"}, {".", "."}},
		{{"it", "PRP"}, {"housed", "VBD"}, {"followers", "NNS"}, {".", "."}},
		{{"they", "PRP"}, {"admired", "VBD"}, {"him", "PRP"}, {".", "."}},
	}}
	sentences, _ := a.Analyze(context.Background(), "")

	res, err := HeuristicCoreferencer{}.Resolve(context.Background(), sentences)
	require.NoError(t, err)

	assert.Equal(t, []string{"ashram"}, res.Resolve(sentences[1].Tokens[0]))
	assert.Equal(t, []string{"followers"}, res.Resolve(sentences[2].Tokens[0]))
	assert.Equal(t, []string{"mahatma gandhi"}, res.Resolve(sentences[2].Tokens[2]))
}

func TestHeuristicCoreferencerUntagged(t *testing.T) {
	sentences, err := PlainAnalyzer{}.Analyze(context.Background(), "Gandhi led the movement. He inspired millions.")
	require.NoError(t, err)
	require.Len(t, sentences, 2)

	res, err := HeuristicCoreferencer{}.Resolve(context.Background(), sentences)
	require.NoError(t, err)
	assert.Equal(t, []string{"Gandhi"}, res.Resolve(sentences[1].Tokens[0]))
}

func TestHeuristicCoreferencerPersonalNeedsProperNoun(t *testing.T) {
	a := taggedAnalyzer{sentences: [][][2]string{
		{{"the", "DT"}, {"movement", "NN"}, {"grew", "VBD"}, {".", "."}},
		{{"he", "PRP"}, {"inspired", "VBD"}, {"millions", "NNS"}, {".", "."}},
	}}
	sentences, _ := a.Analyze(context.Background(), "")

	res, err := HeuristicCoreferencer{}.Resolve(context.Background(), sentences)
	require.NoError(t, err)
	assert.Equal(t, []string{"he"}, res.Resolve(sentences[1].Tokens[0]), "he never refers to a common noun")
}

func TestResolutionResolve(t *testing.T) {
	res := Resolution{3: {"gandhi"}}

	got := res.Resolve(Token{Text: "he", Index: 3})
	assert.Equal(t, []string{"gandhi"}, got)
	got[0] = "changed"
	assert.Equal(t, []string{"gandhi"}, res.Resolve(Token{Text: "he", Index: 3}), "resolve must not expose internal state")

	assert.Equal(t, []string{"march"}, res.Resolve(Token{Text: "march", Index: 4}))
	assert.Equal(t, []string{"he"}, res.Resolve(Token{Text: "he", Index: -1}))
}

func TestSplitSentences(t *testing.T) {
	got, err := SplitSentences("Gandhi led the march.  He inspired millions!\nDid it work?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gandhi led the march.", "He inspired millions!", "Did it work?"}, got)

	got, err = SplitSentences("   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProseAnalyzer(t *testing.T) {
	sentences, err := ProseAnalyzer{}.Analyze(context.Background(), "Gandhi led the movement. He inspired millions.")
	require.NoError(t, err)
	require.Len(t, sentences, 2)

	first := sentences[0].Tokens
	require.NotEmpty(t, first)
	assert.Equal(t, "Gandhi", first[0].Text)
	assert.Equal(t, "NNP", first[0].Tag)
	assert.Equal(t, len(first), sentences[1].Tokens[0].Index, "indices run across sentences")
}

func TestExtractDefaultPipelineOnCleanedCorpus(t *testing.T) {
	text := corpus.Clean("Gandhi led the movement.\n\n  He inspired millions.\n")
	ex := NewExtractor(ProseAnalyzer{}, PatternMatcher{}, HeuristicCoreferencer{})

	triples, err := ex.Extract(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, [][3]string{
		{"gandhi", "led", "movement"},
		{"gandhi", "inspired", "millions"},
	}, spo(triples))
	assert.Equal(t, "He inspired millions.", triples[1].Sentence)
}

func TestExtractLowercasesMentions(t *testing.T) {
	a := taggedAnalyzer{sentences: [][][2]string{
		{{"Mahatma", "NNP"}, {"Gandhi", "NNP"}, {"Led", "VBD"}, {"the", "DT"}, {"Salt", "NNP"}, {"March", "NNP"}},
	}}
	triples, err := NewExtractor(a, PatternMatcher{}, MapCoreferencer{"Gandhi": {"Bapu"}}).Extract(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"mahatma bapu", "led", "salt march"}}, spo(triples))
}

// scriptedChat answers clause prompts from a table keyed by sentence text.
type scriptedChat struct {
	replies map[string]string
}

func (c scriptedChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	for sentence, reply := range c.replies {
		if strings.HasSuffix(prompt, "SENTENCE:\n"+sentence) {
			return &llm.ChatResponse{Content: reply}, nil
		}
	}
	return nil, errors.New("unexpected prompt")
}

func (scriptedChat) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not supported")
}

func TestLLMMatcherPipeline(t *testing.T) {
	chat := scriptedChat{replies: map[string]string{
		"Gandhi led the movement.": "```json\n{\"clauses\": [{\"subject\": \"gandhi\", \"verb\": \"led\", \"object\": \"the movement\"}]}\n```",
		// Truncated by the token limit.
		"He inspired millions.": `{"clauses": [{"subject": "he", "verb": "inspired", "object": "millions"}]`,
	}}
	ex := NewExtractor(PlainAnalyzer{}, NewLLMMatcher(chat, ""), HeuristicCoreferencer{})

	triples, err := ex.Extract(context.Background(), "Gandhi led the movement. He inspired millions.")
	require.NoError(t, err)
	assert.Equal(t, [][3]string{
		{"gandhi", "led", "the movement"},
		{"gandhi", "inspired", "millions"},
	}, spo(triples))
}

func TestAlignWords(t *testing.T) {
	sentences, _ := PlainAnalyzer{}.Analyze(context.Background(), "the cat saw the dog.")
	toks := sentences[0].Tokens
	used := map[int]bool{}

	first := alignWords(toks, "the cat", used)
	second := alignWords(toks, "the dog", used)
	assert.Equal(t, 0, first[0].Index)
	assert.Equal(t, 3, second[0].Index, "an unused occurrence is preferred")

	invented := alignWords(toks, "feline", used)
	require.Len(t, invented, 1)
	assert.Equal(t, -1, invented[0].Index)
}

func TestExtractJSON(t *testing.T) {
	got, err := extractJSON("Sure! Here you go: {\"clauses\": []} Hope that helps.")
	require.NoError(t, err)
	assert.Equal(t, `{"clauses": []}`, got)

	_, err = extractJSON("no json here")
	require.Error(t, err)
}
