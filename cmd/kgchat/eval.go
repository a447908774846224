package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat/dataset"
	"github.com/brunobiangulo/kgchat/eval"
	"github.com/brunobiangulo/kgchat/llm"
)

func newEvalCmd(app *app) *cobra.Command {
	var (
		datasetPath   string
		output        string
		maxTests      int
		judgeProvider string
		judgeModel    string
		judgeAPIKey   string
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure answer accuracy over a QA dataset",
		Long: `Ask every question of a QA dataset and compare the answer with the
expected one. Expected answers may list alternatives separated by "|".
An LLM judge (--judge-provider) reviews answers the strict check rejects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := dataset.LoadQA(datasetPath)
			if err != nil {
				return err
			}
			if maxTests > 0 && len(records) > maxTests {
				records = records[:maxTests]
			}

			bot, err := app.openBot(cmd.Context())
			if err != nil {
				return err
			}
			defer bot.Close()

			ev := eval.NewEvaluator(bot)
			if judgeProvider != "" {
				cfg, err := app.config()
				if err != nil {
					return err
				}
				jc := cfg.Chat
				jc.Provider = judgeProvider
				if judgeModel != "" {
					jc.Model = judgeModel
				}
				if judgeAPIKey != "" {
					jc.APIKey = judgeAPIKey
				}
				if jc.Provider != cfg.Chat.Provider {
					jc.BaseURL = ""
					if judgeAPIKey == "" {
						jc.APIKey = os.Getenv(strings.ToUpper(judgeProvider) + "_API_KEY")
					}
				}
				judge, err := llm.NewProvider(jc)
				if err != nil {
					return errors.Wrap(err, "creating judge")
				}
				ev.SetJudge(judge, jc.Model)
			}

			name := strings.TrimSuffix(filepath.Base(datasetPath), filepath.Ext(datasetPath))
			report, err := ev.Run(cmd.Context(), name, records)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), eval.FormatReport(report))

			if output != "" {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0644); err != nil {
					return errors.Wrap(err, "writing report")
				}
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Report written to "+output))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "QA dataset to evaluate (json, yaml, xlsx)")
	cmd.Flags().StringVar(&output, "output", "", "write the JSON report to this file")
	cmd.Flags().IntVar(&maxTests, "max-tests", 0, "evaluate at most this many questions (0 = all)")
	cmd.Flags().StringVar(&judgeProvider, "judge-provider", "", "LLM provider for the answer judge")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "judge model (default: chat.model)")
	cmd.Flags().StringVar(&judgeAPIKey, "judge-api-key", "", "judge API key (default: from env)")
	cmd.MarkFlagRequired("dataset")
	return cmd
}
