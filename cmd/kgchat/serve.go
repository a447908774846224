package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat/internal/server"
)

func newServeCmd(app *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve questions over HTTP",
		Long: `Serve POST /ask, GET /graph, GET /stats, GET /queries and GET /health.
KGCHAT_SERVER_API_KEY enables bearer authentication.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bot, err := app.openBot(ctx)
			if err != nil {
				return err
			}
			defer bot.Close()

			h := server.New(bot, server.Options{
				APIKey:      app.v.GetString("server.api_key"),
				CORSOrigins: app.v.GetString("server.cors_origins"),
			})
			return server.ListenAndRun(ctx, addr, h)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
