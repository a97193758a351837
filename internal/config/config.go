// Package config loads the gateway's root configuration from YAML with
// environment-variable overrides, following the same load → override →
// default → validate pipeline used throughout this codebase's services.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the run engine process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Tools     ToolsConfig     `yaml:"tools"`
	Router    RouterConfig    `yaml:"router"`
	Tenants   map[string]TenantLimits `yaml:"per_tenant_limits"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	// CatalogPath points at the YAML file listing the model catalog
	// (id, provider, pricing, capabilities); see internal/catalog.LoadFile.
	CatalogPath string `yaml:"catalog_path"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// StoreConfig configures the Run Store + Search Index.
type StoreConfig struct {
	// ConnectionString is the Postgres DSN (store_connection_string, required).
	ConnectionString string        `yaml:"connection_string"`
	MaxConnections   int           `yaml:"max_connections"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	// BlobCompactionInterval controls the cron-driven blob pruning job.
	BlobCompactionInterval time.Duration `yaml:"blob_compaction_interval"`
	// CacheTTL bounds the in-process use_cache=auto reuse window.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// AuthConfig configures the Feedback Token Signer.
type AuthConfig struct {
	// TokenSigningSecret is token_signing_secret (required).
	TokenSigningSecret string        `yaml:"token_signing_secret"`
	FeedbackTokenTTL   time.Duration `yaml:"feedback_token_ttl"`
}

// ProvidersConfig carries per-provider credentials. A provider is enabled
// only when its api_key is non-empty.
type ProvidersConfig struct {
	OpenAI    ProviderCredential `yaml:"openai"`
	Anthropic ProviderCredential `yaml:"anthropic"`
	Bedrock   BedrockCredential  `yaml:"bedrock"`
	Gemini    ProviderCredential `yaml:"gemini"`
}

type ProviderCredential struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type BedrockCredential struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ToolsConfig configures the Tool Orchestrator's hosted tools.
type ToolsConfig struct {
	// SearchAPIKey is tool_search_api_key; the web-search tool is disabled
	// when absent.
	SearchAPIKey       string        `yaml:"search_api_key"`
	SearchEngineID     string        `yaml:"search_engine_id"`
	PerplexityAPIKey   string        `yaml:"perplexity_api_key"`
	MaxConcurrency     int           `yaml:"max_concurrency"`
	PerToolTimeout     time.Duration `yaml:"per_tool_timeout"`
	BrowserExecPath    string        `yaml:"browser_exec_path"`
}

// RouterConfig configures attempt selection and health scoring.
type RouterConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	HealthFloor     float64       `yaml:"health_floor"`
	HealthCooldown  time.Duration `yaml:"health_cooldown"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	IdleStreamTimeout time.Duration `yaml:"idle_stream_timeout"`
}

// TenantLimits carries per-tenant overrides referenced by the Router and
// Run Engine (fallback order, attempt timeout, allow-listed providers).
type TenantLimits struct {
	AllowedProviders []string      `yaml:"allowed_providers"`
	FallbackOrder    []string      `yaml:"fallback_order"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	PreferredKeys    map[string]string `yaml:"preferred_keys"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Load reads path, expands environment variables, applies env-var
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SERVER_HTTP_PORT")); v != "" {
		if port, err := parseInt(v); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("STORE_CONNECTION_STRING")); v != "" {
		cfg.Store.ConnectionString = v
	}
	if v := strings.TrimSpace(os.Getenv("TOKEN_SIGNING_SECRET")); v != "" {
		cfg.Auth.TokenSigningSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TOOL_SEARCH_API_KEY")); v != "" {
		cfg.Tools.SearchAPIKey = v
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Store.MaxConnections == 0 {
		cfg.Store.MaxConnections = 25
	}
	if cfg.Store.ConnMaxLifetime == 0 {
		cfg.Store.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Store.BlobCompactionInterval == 0 {
		cfg.Store.BlobCompactionInterval = time.Hour
	}
	if cfg.Store.CacheTTL == 0 {
		cfg.Store.CacheTTL = 60 * time.Second
	}
	if cfg.Auth.FeedbackTokenTTL == 0 {
		cfg.Auth.FeedbackTokenTTL = 90 * 24 * time.Hour
	}
	if cfg.Tools.MaxConcurrency == 0 {
		cfg.Tools.MaxConcurrency = 4
	}
	if cfg.Tools.PerToolTimeout == 0 {
		cfg.Tools.PerToolTimeout = 15 * time.Second
	}
	if cfg.Router.MaxAttempts == 0 {
		cfg.Router.MaxAttempts = 4
	}
	if cfg.Router.HealthFloor == 0 {
		cfg.Router.HealthFloor = 0.2
	}
	if cfg.Router.HealthCooldown == 0 {
		cfg.Router.HealthCooldown = 30 * time.Second
	}
	if cfg.Router.AttemptTimeout == 0 {
		cfg.Router.AttemptTimeout = 60 * time.Second
	}
	if cfg.Router.IdleStreamTimeout == 0 {
		cfg.Router.IdleStreamTimeout = 20 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "runengine"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "models.yaml"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Store.ConnectionString) == "" {
		return fmt.Errorf("store.connection_string (STORE_CONNECTION_STRING) is required")
	}
	if strings.TrimSpace(cfg.Auth.TokenSigningSecret) == "" {
		return fmt.Errorf("auth.token_signing_secret (TOKEN_SIGNING_SECRET) is required")
	}
	if cfg.Providers.OpenAI.APIKey == "" && cfg.Providers.Anthropic.APIKey == "" &&
		cfg.Providers.Bedrock.AccessKeyID == "" && cfg.Providers.Gemini.APIKey == "" {
		return fmt.Errorf("at least one provider must be configured")
	}
	return nil
}
