// Command kgchat answers questions from a knowledge graph built from a text
// corpus or a question/answer dataset.
//
//	kgchat chat --corpus corpus/gandhi.txt --topic "Mahatma Gandhi"
//	kgchat ask --qa faq.json "What is the capital of France?"
//	kgchat eval --qa faq.json --dataset faq.json
//	kgchat serve --config kgchat.yaml --addr :8080
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/internal/logging"
	"github.com/brunobiangulo/kgchat/resolve"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

// app carries the global flags and the configuration they select.
type app struct {
	v          *viper.Viper
	configPath string
	verbose    bool
	jsonLogs   bool
	logFile    string

	logCloser io.Closer
	// opts are passed to kgchat.New; tests inject fakes here.
	opts []kgchat.Option
}

// flagKeys maps persistent override flags to configuration keys.
var flagKeys = map[string]string{
	"db":       "store.db_path",
	"corpus":   "corpus.path",
	"topic":    "corpus.topic",
	"qa":       "graph.qa_path",
	"mode":     "graph.mode",
	"strategy": "matcher.strategy",
	"synonyms": "graph.synonyms_path",
}

func newRootCmd(opts ...kgchat.Option) *cobra.Command {
	a := &app{v: viper.New(), opts: opts}

	root := &cobra.Command{
		Use:           "kgchat",
		Short:         "Knowledge graph question answering",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.logCloser = logging.Setup(logging.Options{
				Verbose: a.verbose,
				JSON:    a.jsonLogs,
				File:    a.logFile,
				Writer:  cmd.ErrOrStderr(),
			})
			// --qa alone selects QA mode.
			if f := cmd.Flags().Lookup("qa"); f != nil && f.Changed && !cmd.Flags().Changed("mode") {
				a.v.Set("graph.mode", kgchat.ModeQA)
			}
			for name, key := range flagKeys {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return errors.Wrapf(err, "binding --%s", name)
				}
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to config file (yaml, json or toml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&a.jsonLogs, "json-logs", false, "log JSON lines instead of console text")
	pf.StringVar(&a.logFile, "log-file", "", "also write logs to this file, rotated")
	pf.String("db", "", "SQLite database path")
	pf.String("corpus", "", "corpus file (txt, md, pdf, docx)")
	pf.String("topic", "", "Wikipedia article fetched when the corpus file is missing")
	pf.String("qa", "", "question/answer dataset (json, yaml, xlsx); implies --mode qa")
	pf.String("mode", "", "graph mode: relation or qa")
	pf.String("strategy", "", "matcher strategy: embedding or lexical")
	pf.String("synonyms", "", "synonym mapping file (json, yaml)")

	root.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newBuildCmd(a),
		newEvalCmd(a),
		newStatsCmd(a),
		newGraphsCmd(a),
		newServeCmd(a),
	)
	return root
}

// config loads the configuration with flag overrides applied.
func (a *app) config() (kgchat.Config, error) {
	return kgchat.LoadConfig(a.v, a.configPath)
}

func (a *app) openBot(ctx context.Context, modify ...func(*kgchat.Config)) (*kgchat.Bot, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	for _, m := range modify {
		m(&cfg)
	}
	return kgchat.New(ctx, cfg, a.opts...)
}

// printError writes err for a terminal user, with the fixed message for a
// missing knowledge base and any hints attached to the error.
func printError(w io.Writer, err error) {
	if errors.Is(err, kgchat.ErrNoKnowledgeBase) {
		fmt.Fprintln(w, warnStyle.Render(resolve.NoKnowledgeBase))
	}
	fmt.Fprintln(w, errorStyle.Render("Error: ")+err.Error())
	if hints := errors.FlattenHints(err); hints != "" {
		for _, h := range strings.Split(hints, "\n--\n") {
			fmt.Fprintln(w, mutedStyle.Render("hint: "+h))
		}
	}
}
