package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/resolve"
)

// exitWords end the chat. They are matched exactly, so "Exit" is a question.
var exitWords = map[string]bool{"exit": true, "quit": true, "stop": true}

type asker interface {
	Ask(ctx context.Context, question string) (*kgchat.Answer, error)
}

func newChatCmd(app *app) *cobra.Command {
	var showScore bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Start an interactive session. Each line is a question; "exit", "quit"
or "stop" ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, mutedStyle.Render("Preparing the knowledge graph..."))

			bot, err := app.openBot(cmd.Context())
			if err != nil {
				return err
			}
			defer bot.Close()

			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Ready: %d facts about %q. Type exit to leave.",
				bot.Graph().EdgeCount(), bot.Name())))
			return runChat(cmd.Context(), bot, cmd.InOrStdin(), out, showScore)
		},
	}
	cmd.Flags().BoolVar(&showScore, "score", false, "show the matched node and its score")
	return cmd
}

// runChat reads questions from in until an exit word or end of input and
// writes each answer to out. A failing question is reported and the session
// continues.
func runChat(ctx context.Context, bot asker, in io.Reader, out io.Writer, showScore bool) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("Your question: "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := sc.Text()
		if exitWords[line] {
			break
		}

		a, err := bot.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, errorStyle.Render("Error: ")+err.Error())
			continue
		}
		fmt.Fprintln(out, responseLabel.Render("Chatbot's response: ")+a.Text)
		if showScore && a.Node != "" {
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("  matched %q (score %.3f)", a.Node, a.Score)))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out, resolve.Farewell)
	return nil
}
