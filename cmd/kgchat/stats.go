package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat"
)

func newBuildCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the knowledge graph again and save it",
		Long: `Build the knowledge graph from the corpus (relation mode) or the QA
dataset (qa mode), replacing any saved graph of the same name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := app.openBot(cmd.Context(), func(c *kgchat.Config) { c.Graph.Rebuild = true })
			if err != nil {
				return err
			}
			defer bot.Close()
			return printStats(cmd.Context(), cmd.OutOrStdout(), bot, false, 0)
		},
	}
}

func newStatsCmd(app *app) *cobra.Command {
	var (
		asJSON  bool
		queries int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph and store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := app.openBot(cmd.Context())
			if err != nil {
				return err
			}
			defer bot.Close()
			return printStats(cmd.Context(), cmd.OutOrStdout(), bot, asJSON, queries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().IntVar(&queries, "queries", 0, "also list this many recent questions")
	return cmd
}

func printStats(ctx context.Context, out io.Writer, bot *kgchat.Bot, asJSON bool, queries int) error {
	s, err := bot.Stats(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	row := func(k string, v any) {
		fmt.Fprintln(out, keyStyle.Render(k)+fmt.Sprint(v))
	}
	fmt.Fprintln(out, headerStyle.Render("Graph "+s.Name))
	row("mode", s.Mode)
	row("nodes", s.Graph.Nodes)
	row("edges", s.Graph.Edges)
	row("components", s.Graph.Components)
	row("largest", s.Graph.LargestComponent)

	rels := make([]string, 0, len(s.Graph.Relations))
	for r := range s.Graph.Relations {
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool {
		ci, cj := s.Graph.Relations[rels[i]], s.Graph.Relations[rels[j]]
		if ci != cj {
			return ci > cj
		}
		return rels[i] < rels[j]
	})
	if len(rels) > 10 {
		rels = rels[:10]
	}
	if len(rels) > 0 {
		fmt.Fprintln(out, headerStyle.Render("Top relations"))
		for _, r := range rels {
			row(r, s.Graph.Relations[r])
		}
	}

	if s.Store != nil {
		fmt.Fprintln(out, headerStyle.Render("Store"))
		row("graphs", s.Store.Graphs)
		row("embeddings", s.Store.Embeddings)
		row("cached for model", s.CachedEmbeddings)
		row("queries", s.Store.Queries)
	}
	if len(s.Saved) > 0 {
		fmt.Fprintln(out, headerStyle.Render("Saved graphs"))
		printGraphs(out, s.Saved)
	}

	if queries <= 0 {
		return nil
	}
	logs, err := bot.RecentQueries(ctx, queries)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, headerStyle.Render("Recent questions"))
	for _, q := range logs {
		fmt.Fprintf(out, "%s %s\n", q.Query, mutedStyle.Render(fmt.Sprintf("-> %s (%.2f)", q.Outcome, q.Score)))
	}
	return nil
}
