package main

import (
	"github.com/spf13/cobra"
)

// buildMigrateCmd creates the "migrate" command that applies the
// run/blob/metadata schema to the configured store.
func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the run engine's database schema to the configured Postgres
instance. Every statement is idempotent (CREATE TABLE/INDEX IF NOT
EXISTS), so this is safe to run on every deploy.`,
		Example: `  runengine migrate --config /etc/runengine/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMigrate(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	return cmd
}
