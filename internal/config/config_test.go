package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
store:
  connection_string: "postgres://localhost/runs"
auth:
  token_signing_secret: "s3cr3t"
providers:
  openai:
    api_key: "sk-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected default http_port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Router.MaxAttempts != 4 {
		t.Errorf("expected default max_attempts 4, got %d", cfg.Router.MaxAttempts)
	}
	if cfg.Auth.FeedbackTokenTTL.Hours() != 90*24 {
		t.Errorf("expected default feedback token ttl of 90 days, got %v", cfg.Auth.FeedbackTokenTTL)
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing store dsn", `
auth:
  token_signing_secret: "s3cr3t"
providers:
  openai:
    api_key: "sk-test"
`},
		{"missing signing secret", `
store:
  connection_string: "postgres://localhost/runs"
providers:
  openai:
    api_key: "sk-test"
`},
		{"no provider configured", `
store:
  connection_string: "postgres://localhost/runs"
auth:
  token_signing_secret: "s3cr3t"
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error, got nil")
			}
		})
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_DSN", "postgres://env/runs")
	path := writeTempConfig(t, `
store:
  connection_string: "${TEST_DSN}"
auth:
  token_signing_secret: "s3cr3t"
providers:
  anthropic:
    api_key: "sk-ant-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.ConnectionString != "postgres://env/runs" {
		t.Errorf("expected expanded env var, got %q", cfg.Store.ConnectionString)
	}
}
