package main

import (
	"github.com/spf13/cobra"
)

// buildCatalogCmd creates the "catalog" command group for inspecting
// the model catalog seed.
func buildCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the model catalog",
	}

	cmd.AddCommand(buildCatalogListCmd())

	return cmd
}

func buildCatalogListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every model in the configured catalog",
		Example: `  runengine catalog list --config runengine.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runCatalogList(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	return cmd
}
