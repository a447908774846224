package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/store"
)

func newGraphsCmd(app *app) *cobra.Command {
	var drop string
	cmd := &cobra.Command{
		Use:   "graphs",
		Short: "List the graphs saved in the database",
		Long: `List the graphs saved in the database. With --delete, remove one so the
next run builds it again from its corpus or dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if drop != "" {
				if err := kgchat.DeleteGraph(cmd.Context(), cfg, drop); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Deleted "+drop))
				return nil
			}
			infos, err := kgchat.ListGraphs(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printGraphs(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.Flags().StringVar(&drop, "delete", "", "delete the named graph")
	return cmd
}

func printGraphs(out io.Writer, infos []store.GraphInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No saved graphs"))
		return
	}
	for _, gi := range infos {
		fmt.Fprintln(out, keyStyle.Render(gi.Name)+
			fmt.Sprintf("%d nodes, %d edges ", gi.Nodes, gi.Edges)+
			mutedStyle.Render("updated "+gi.UpdatedAt))
	}
}
