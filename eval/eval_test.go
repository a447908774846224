package eval

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/llm"
	"github.com/brunobiangulo/kgchat/resolve"
)

// mapAsker answers from a fixed table; unknown questions get the
// don't-know response.
type mapAsker map[string]*kgchat.Answer

func (m mapAsker) Ask(_ context.Context, q string) (*kgchat.Answer, error) {
	if q == "boom" {
		return nil, errors.New("embedding provider down")
	}
	if a, ok := m[q]; ok {
		return a, nil
	}
	return &kgchat.Answer{Query: q, Text: resolve.DontKnow, Outcome: resolve.OutcomeUnknown}, nil
}

func TestRun(t *testing.T) {
	bot := mapAsker{
		"What is the capital of France?": {
			Text: "Paris", Outcome: resolve.OutcomeAnswer,
			Node: "What is the capital of France?", Score: 1, Accepted: true,
		},
		"Who led the Salt March?": {
			Text: "Gandhi led the salt march.", Outcome: resolve.OutcomeSynthesized,
			Node: "salt march", Score: 0.5, Accepted: true,
		},
	}
	records := []graph.QA{
		{Question: "What is the capital of France?", Answer: "Paris"},
		{Question: "Who led the Salt March?", Answer: "gandhi"},
		{Question: "Who wrote Hamlet?", Answer: "Shakespeare"},
		{Question: "boom", Answer: "x"},
	}

	report, err := NewEvaluator(bot).Run(context.Background(), "mixed", records)
	require.NoError(t, err)

	assert.Equal(t, "mixed", report.Dataset)
	assert.Equal(t, 4, report.TotalTests)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.ExactMatches)
	assert.Equal(t, 1, report.NodeHits)
	assert.InDelta(t, 0.5, report.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, report.AvgScore, 1e-9) // (1 + 0.5 + 0) / 3
	assert.Equal(t, map[string]int{"answer": 1, "synthesized": 1, "unknown": 1}, report.Outcomes)

	require.Len(t, report.Results, 4)
	assert.True(t, report.Results[0].Exact)
	assert.True(t, report.Results[1].Contains)
	assert.False(t, report.Results[1].Exact)
	assert.Equal(t, resolve.DontKnow, report.Results[2].Answer)
	assert.Contains(t, report.Results[3].Error, "provider down")

	text := FormatReport(report)
	assert.Contains(t, text, "=== Evaluation Report: mixed ===")
	assert.Contains(t, text, "Passed: 2 (50.0%)")
	assert.Contains(t, text, "[FAIL] 4. boom")
}

func TestRunEmptyDataset(t *testing.T) {
	report, err := NewEvaluator(mapAsker{}).Run(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Zero(t, report.TotalTests)
	assert.Zero(t, report.Accuracy)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator(mapAsker{}).Run(ctx, "x", []graph.QA{{Question: "q", Answer: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatching(t *testing.T) {
	tests := []struct {
		answer, expected string
		exact, contains  bool
	}{
		{"Paris", "Paris", true, true},
		{"paris.", "Paris", true, true},
		{"  PARIS  ", "paris", true, true},
		{"The capital is Paris.", "Paris", false, true},
		{"Lyon", "Paris|Lyon", true, true},
		{"fill-level sensor", "fill level", false, true},
		{"nonviolent resistance", "non violent", false, true},
		{"", "Paris", false, false},
		{"Berlin", "Paris", false, false},
		{"Paris", "", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.exact, exactMatch(tt.answer, tt.expected), "exact(%q, %q)", tt.answer, tt.expected)
		assert.Equal(t, tt.contains, containsAnswer(tt.answer, tt.expected), "contains(%q, %q)", tt.answer, tt.expected)
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a - b", normalizeText("A \u2013 B"))
	assert.Equal(t, "ab c", normalizeText("a\u200bb c!"))
}

type judgeChat struct {
	reply string
	err   error
	calls int
}

func (j *judgeChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	j.calls++
	if j.err != nil {
		return nil, j.err
	}
	if !strings.Contains(req.Messages[0].Content, "Expected answer:") {
		return nil, errors.New("unexpected prompt")
	}
	return &llm.ChatResponse{Content: j.reply}, nil
}

func (j *judgeChat) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func TestJudge(t *testing.T) {
	bot := mapAsker{"Who led the Salt March?": {Text: "The Mahatma did.", Outcome: resolve.OutcomeSynthesized}}
	records := []graph.QA{{Question: "Who led the Salt March?", Answer: "Gandhi"}}

	tests := []struct {
		name       string
		judge      *judgeChat
		wantPassed bool
	}{
		{"judge accepts paraphrase", &judgeChat{reply: `{"correct": true}`}, true},
		{"judge rejects", &judgeChat{reply: `{"correct": false}`}, false},
		{"judge error keeps strict", &judgeChat{err: errors.New("timeout")}, false},
		{"judge without verdict", &judgeChat{reply: `{}`}, false},
		{"judge garbage", &judgeChat{reply: `not json`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(bot)
			e.SetJudge(tt.judge, "judge-model")
			report, err := e.Run(context.Background(), "judge", records)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, report.Results[0].Passed)
			assert.Equal(t, 1, tt.judge.calls)
		})
	}
}

func TestJudgeSkippedWhenStrictPasses(t *testing.T) {
	bot := mapAsker{"q": {Text: "Paris", Outcome: resolve.OutcomeAnswer}}
	j := &judgeChat{reply: `{"correct": false}`}
	e := NewEvaluator(bot)
	e.SetJudge(j, "m")
	report, err := e.Run(context.Background(), "x", []graph.QA{{Question: "q", Answer: "Paris"}})
	require.NoError(t, err)
	assert.True(t, report.Results[0].Passed)
	assert.Zero(t, j.calls)
}
