// Package eval measures how well a bot answers a question/answer dataset.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/llm"
)

// Asker answers one question. *kgchat.Bot satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (*kgchat.Answer, error)
}

// Evaluator runs a dataset against an Asker.
type Evaluator struct {
	bot        Asker
	judgeLLM   llm.Provider
	judgeModel string
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(bot Asker) *Evaluator {
	return &Evaluator{bot: bot}
}

// SetJudge configures an LLM judge. When set, a test that fails the
// verbatim check can still pass if the judge finds the expected answer
// conveyed by the bot's answer.
func (e *Evaluator) SetJudge(provider llm.Provider, model string) {
	e.judgeLLM = provider
	e.judgeModel = model
}

// Report holds the results of an evaluation run.
type Report struct {
	Dataset      string         `json:"dataset"`
	TotalTests   int            `json:"total_tests"`
	Passed       int            `json:"passed"`
	Failed       int            `json:"failed"`
	Errors       int            `json:"errors"`
	ExactMatches int            `json:"exact_matches"`
	NodeHits     int            `json:"node_hits"`
	Accuracy     float64        `json:"accuracy"`
	AvgScore     float64        `json:"avg_score"`
	Outcomes     map[string]int `json:"outcomes"`
	Results      []TestResult   `json:"results"`
	RunTime      time.Duration  `json:"run_time"`
}

// TestResult is the outcome of one question.
type TestResult struct {
	Question    string  `json:"question"`
	Expected    string  `json:"expected"`
	Answer      string  `json:"answer"`
	Outcome     string  `json:"outcome,omitempty"`
	MatchedNode string  `json:"matched_node,omitempty"`
	Score       float64 `json:"score"`
	Exact       bool    `json:"exact"`
	Contains    bool    `json:"contains"`
	NodeHit     bool    `json:"node_hit"`
	Judged      bool    `json:"judged,omitempty"`
	Passed      bool    `json:"passed"`
	Error       string  `json:"error,omitempty"`
	ElapsedMs   int64   `json:"elapsed_ms"`
}

// Run asks every question of records in order.
func (e *Evaluator) Run(ctx context.Context, name string, records []graph.QA) (*Report, error) {
	start := time.Now()
	report := &Report{
		Dataset:    name,
		TotalTests: len(records),
		Outcomes:   make(map[string]int),
	}

	scored := 0
	for i, qa := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := e.runTest(ctx, qa)
		report.Results = append(report.Results, result)

		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			status = "ERROR"
		}
		slog.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(records)),
			"status", status,
			"outcome", result.Outcome,
			"score", fmt.Sprintf("%.2f", result.Score),
			"elapsed_ms", result.ElapsedMs,
			"question", truncate(qa.Question, 80))

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		if result.Error != "" {
			report.Errors++
			continue
		}

		scored++
		report.AvgScore += result.Score
		report.Outcomes[result.Outcome]++
		if result.Exact {
			report.ExactMatches++
		}
		if result.NodeHit {
			report.NodeHits++
		}
	}

	if scored > 0 {
		report.AvgScore /= float64(scored)
	}
	if report.TotalTests > 0 {
		report.Accuracy = float64(report.Passed) / float64(report.TotalTests)
	}
	report.RunTime = time.Since(start)
	return report, nil
}

func (e *Evaluator) runTest(ctx context.Context, qa graph.QA) TestResult {
	testStart := time.Now()
	result := TestResult{Question: qa.Question, Expected: qa.Answer}

	answer, err := e.bot.Ask(ctx, qa.Question)
	if err != nil {
		result.Error = err.Error()
		result.ElapsedMs = time.Since(testStart).Milliseconds()
		return result
	}

	result.Answer = answer.Text
	result.Outcome = string(answer.Outcome)
	result.MatchedNode = answer.Node
	result.Score = answer.Score
	result.Exact = exactMatch(answer.Text, qa.Answer)
	result.Contains = containsAnswer(answer.Text, qa.Answer)
	result.NodeHit = answer.Accepted && normalizeText(answer.Node) == normalizeText(qa.Question)
	result.Passed = result.Exact || result.Contains

	if !result.Passed && e.judgeLLM != nil && answer.Text != "" {
		ok, err := judgeAnswer(ctx, e.judgeLLM, e.judgeModel, qa, answer.Text)
		if err != nil {
			slog.Warn("judge LLM failed, keeping strict result",
				"error", err,
				"question", truncate(qa.Question, 60))
		} else {
			result.Judged = ok
			result.Passed = ok
		}
	}

	result.ElapsedMs = time.Since(testStart).Milliseconds()
	return result
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d | Errors: %d\n",
		r.TotalTests, r.Passed, r.Accuracy*100, r.Failed, r.Errors)
	fmt.Fprintf(&b, "Exact matches: %d | Node hits: %d | Avg score: %.2f\n",
		r.ExactMatches, r.NodeHits, r.AvgScore)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	if len(r.Outcomes) > 0 {
		outcomes := make([]string, 0, len(r.Outcomes))
		for o := range r.Outcomes {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		fmt.Fprintf(&b, "Outcomes:\n")
		for _, o := range outcomes {
			fmt.Fprintf(&b, "  %-12s %d\n", o, r.Outcomes[o])
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, res.Question)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  expected=%q got=%q score=%.2f (%dms)\n",
			truncate(res.Expected, 60), truncate(res.Answer, 60), res.Score, res.ElapsedMs)
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
