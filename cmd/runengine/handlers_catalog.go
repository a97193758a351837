package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/config"
)

// runCatalogList loads the configured catalog seed and prints every
// model as a tab-aligned table.
func runCatalogList(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	models := cat.List(nil)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tTIER\tCONTEXT\tIN $/1M\tOUT $/1M\tDEPRECATED")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%t\n",
			m.ID, m.Provider, m.Tier, m.ContextWindow, m.InputPrice, m.OutputPrice, m.Deprecated)
	}
	return w.Flush()
}
