// Package main provides the CLI entry point for the run engine.
//
// # Basic Usage
//
// Start the server:
//
//	runengine serve --config runengine.yaml
//
// Apply the database schema:
//
//	runengine migrate
//
// List the configured model catalog:
//
//	runengine catalog list --config runengine.yaml
//
// # Environment Variables
//
//   - RUNENGINE_CONFIG: path to the configuration file (default: runengine.yaml)
//   - STORE_CONNECTION_STRING: Postgres DSN
//   - TOKEN_SIGNING_SECRET: feedback token signing secret
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY: provider credentials
//   - TOOL_SEARCH_API_KEY: enables the web-search hosted tool
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "runengine",
		Short: "Run Engine - OpenAI-compatible inference gateway",
		Long: `Run Engine accepts chat-completion requests on a single wire protocol,
resolves them against a catalog of language-model providers, executes
them with failover and cost accounting, and persists each run for
search, replay and prompt iteration.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildCatalogCmd(),
	)

	return rootCmd
}

// resolveConfigPath falls back to RUNENGINE_CONFIG, then the default
// file name, when no --config flag was given.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("RUNENGINE_CONFIG")); env != "" {
		return env
	}
	return "runengine.yaml"
}
