package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the HTTP
// boundary, the background blob pruner and every wired provider.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run engine HTTP server",
		Long: `Start the run engine: load configuration, connect to the Run Store,
wire the configured providers and hosted tools, and serve the
OpenAI-compatible chat-completions API plus run/search/feedback/
deployment management endpoints.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  runengine serve

  # Start with a custom config file
  runengine serve --config /etc/runengine/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
