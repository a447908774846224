// Command server answers questions over HTTP from one knowledge graph.
//
//	server --config kgchat.yaml --addr :8080
//
// Configuration follows kgchat.LoadConfig. KGCHAT_SERVER_API_KEY enables
// bearer authentication and KGCHAT_SERVER_CORS_ORIGINS sets the allowed
// origins.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/internal/logging"
	"github.com/brunobiangulo/kgchat/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logFile    string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the knowledge graph chatbot over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closer := logging.Setup(logging.Options{JSON: true, Verbose: verbose, File: logFile, Writer: os.Stdout})
			defer closer.Close()

			v := viper.New()
			cfg, err := kgchat.LoadConfig(v, configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bot, err := kgchat.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer bot.Close()

			h := server.New(bot, server.Options{
				APIKey:      v.GetString("server.api_key"),
				CORSOrigins: v.GetString("server.cors_origins"),
			})
			return server.ListenAndRun(ctx, addr, h)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (yaml, json or toml)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}
