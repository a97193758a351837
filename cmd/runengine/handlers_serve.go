package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/cache"
	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/config"
	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/feedback"
	"github.com/workflowai/runengine/internal/httpapi"
	"github.com/workflowai/runengine/internal/observability"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/router"
	"github.com/workflowai/runengine/internal/store"
	"github.com/workflowai/runengine/internal/tools"
)

// runServe loads configuration, wires every collaborator and serves
// until SIGINT/SIGTERM, then shuts down gracefully.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	obsLog := observability.NewLogger(observability.LogConfig{
		Level:          level,
		Format:         cfg.Logging.Format,
		AddSource:      cfg.Logging.AddSource,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})
	slogLevel := slog.LevelInfo
	if level == "debug" {
		slogLevel = slog.LevelDebug
	}
	slogLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
	metrics := observability.NewMetrics()

	pgStore, err := store.Open(cfg.Store.ConnectionString, store.Config{
		MaxOpenConns:    cfg.Store.MaxConnections,
		MaxIdleConns:    cfg.Store.MaxConnections / 5,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		ConnectTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer pgStore.Close()

	signer := feedback.NewSigner(cfg.Auth.TokenSigningSecret, cfg.Auth.FeedbackTokenTTL)

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	adapters, err := buildProviderAdapters(ctx, cfg.Providers)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	rtr := router.New(cat, adapters, router.NewHealthTracker())

	toolOrchestrator := tools.New(buildHostedTools(cfg.Tools)...)

	asm := assembler.New(pgStore, pgStore, toolOrchestrator)
	eng := engine.New(rtr, toolOrchestrator, pgStore, signer, cat, engine.DefaultConfig(), slogLogger)

	deps := httpapi.Deps{
		Assembler:      asm,
		Engine:         eng,
		Catalog:        cat,
		Runs:           pgStore,
		Search:         pgStore,
		Feedback:       pgStore,
		Versions:       pgStore,
		Signer:         signer,
		Tools:          toolOrchestrator,
		Cache:          cache.New(cfg.Store.CacheTTL),
		Log:            obsLog,
		Metrics:        metrics,
		TenantPolicies: buildTenantPolicies(cfg.Tenants),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	server := httpapi.NewServer(addr, deps)

	pruner, err := store.NewPruner(pgStore, cronScheduleFor(cfg.Store.BlobCompactionInterval), slogLogger)
	if err != nil {
		return fmt.Errorf("build pruner: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pruner.Start()
	slogLogger.Info("run engine serving", "addr", addr)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slogLogger.Info("shutting down")
	pruner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// buildProviderAdapters constructs an adapter only for providers with a
// non-empty credential, per tools.New's same omit-rather-than-disable
// convention.
func buildProviderAdapters(ctx context.Context, cfg config.ProvidersConfig) (map[catalog.Provider]provider.Adapter, error) {
	adapters := make(map[catalog.Provider]provider.Adapter)

	if cfg.OpenAI.APIKey != "" {
		adapters[catalog.ProviderOpenAI] = provider.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	}
	if cfg.Anthropic.APIKey != "" {
		adapters[catalog.ProviderAnthropic] = provider.NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL)
	}
	if cfg.Bedrock.AccessKeyID != "" {
		bed, err := provider.NewBedrock(ctx, cfg.Bedrock.Region, cfg.Bedrock.AccessKeyID, cfg.Bedrock.SecretAccessKey)
		if err != nil {
			return nil, fmt.Errorf("bedrock: %w", err)
		}
		adapters[catalog.ProviderBedrock] = bed
	}
	if cfg.Gemini.APIKey != "" {
		gem, err := provider.NewGemini(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		adapters[catalog.ProviderGemini] = gem
	}

	return adapters, nil
}

// buildHostedTools assembles the hosted tool set from whichever
// backends cfg enables.
func buildHostedTools(cfg config.ToolsConfig) []tools.Tool {
	var registered []tools.Tool

	if cfg.SearchAPIKey != "" {
		backend := tools.NewGoogleSearchBackend(cfg.SearchAPIKey, cfg.SearchEngineID)
		registered = append(registered, tools.NewWebSearchTool(backend))
	}
	if cfg.PerplexityAPIKey != "" {
		client := tools.NewPerplexityClient(cfg.PerplexityAPIKey)
		for _, t := range tools.NewPerplexitySonarTools(client) {
			registered = append(registered, t)
		}
	}
	if cfg.BrowserExecPath != "" {
		pool := tools.NewBrowserPool(cfg.MaxConcurrency, cfg.BrowserExecPath)
		registered = append(registered, tools.NewBrowserTextTool(pool, cfg.PerToolTimeout))
	}

	return registered
}

// buildTenantPolicies converts the config's per-tenant limits into the
// Router's TenantPolicy shape.
func buildTenantPolicies(limits map[string]config.TenantLimits) map[string]router.TenantPolicy {
	if len(limits) == 0 {
		return nil
	}
	policies := make(map[string]router.TenantPolicy, len(limits))
	for tenant, l := range limits {
		policies[tenant] = router.TenantPolicy{
			AllowedProviders: toProviders(l.AllowedProviders),
			FallbackOrder:    toProviders(l.FallbackOrder),
			OwnKeyProviders:  toOwnKeyProviders(l.PreferredKeys),
		}
	}
	return policies
}

func toProviders(names []string) []catalog.Provider {
	if len(names) == 0 {
		return nil
	}
	out := make([]catalog.Provider, len(names))
	for i, n := range names {
		out[i] = catalog.Provider(n)
	}
	return out
}

// toOwnKeyProviders marks every provider with a configured preferred
// key as a bring-your-own-key provider for this tenant.
func toOwnKeyProviders(preferredKeys map[string]string) map[catalog.Provider]bool {
	if len(preferredKeys) == 0 {
		return nil
	}
	out := make(map[catalog.Provider]bool, len(preferredKeys))
	for name := range preferredKeys {
		out[catalog.Provider(name)] = true
	}
	return out
}

// cronScheduleFor converts a plain interval into a "@every" cron
// expression the robfig/cron parser accepts.
func cronScheduleFor(interval time.Duration) string {
	if interval <= 0 {
		interval = time.Hour
	}
	return fmt.Sprintf("@every %s", interval)
}
