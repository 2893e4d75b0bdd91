package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
analyzer:
  concurrency: 6
  queue_depth: 128
  module_timeout_seconds: 90
fetcher:
  user_agent: intel-agent
  timeout_seconds: 45
  min_content_length: 200
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 4096
providers:
  gemini:
    type: gemini
    enabled: true
    model: gemini-1.5-pro
    api_key_env: GEMINI_API_KEY
    timeout_seconds: 30
    max_retries: 1
arbiter:
  strategy: heuristic
  min_output_length: 120
  priority: ["gemini", "openai"]
store:
  retention_minutes: 30
  max_jobs: 100
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Analyzer.Concurrency != 6 || cfg.Analyzer.QueueDepth != 128 {
		t.Fatalf("expected analyzer overrides to apply: %+v", cfg.Analyzer)
	}
	gemini, ok := cfg.Providers["gemini"]
	if !ok || gemini.Model != "gemini-1.5-pro" || gemini.MaxRetries != 1 {
		t.Fatalf("expected gemini provider overrides: %+v", cfg.Providers)
	}
	if cfg.Arbiter.MinOutputLength != 120 {
		t.Fatalf("expected arbiter min length 120, got %d", cfg.Arbiter.MinOutputLength)
	}
	if got := cfg.ModuleTimeout(); got != 90*time.Second {
		t.Fatalf("expected module timeout 90s, got %v", got)
	}
	if got := cfg.Retention(); got != 30*time.Minute {
		t.Fatalf("expected retention 30m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected gemini and openai default providers, got %+v", cfg.Providers)
	}
	if cfg.Arbiter.Strategy != "heuristic" {
		t.Fatalf("expected heuristic default strategy, got %q", cfg.Arbiter.Strategy)
	}
	if cfg.Store.MaxJobs != 500 {
		t.Fatalf("expected default max jobs 500, got %d", cfg.Store.MaxJobs)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Analyzer: AnalyzerConfig{Concurrency: 1, ModuleTimeoutSeconds: 60},
		Fetcher:  FetcherConfig{TimeoutSeconds: 10},
		Providers: map[string]ProviderConfig{
			"gemini": {Type: "gemini", Enabled: true, Model: "gemini-1.5-flash"},
		},
		Arbiter: ArbiterConfig{Strategy: "heuristic"},
		Store:   StoreConfig{MaxJobs: 10},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Analyzer.Concurrency = 0
				return c
			}(),
			want: "analyzer.concurrency",
		},
		{
			name: "invalid fetch timeout",
			cfg: func() Config {
				c := base
				c.Fetcher.TimeoutSeconds = 0
				return c
			}(),
			want: "fetcher.timeout_seconds",
		},
		{
			name: "no providers",
			cfg: func() Config {
				c := base
				c.Providers = nil
				return c
			}(),
			want: "at least one provider",
		},
		{
			name: "bad provider type",
			cfg: func() Config {
				c := base
				c.Providers = map[string]ProviderConfig{"x": {Type: "llama"}}
				return c
			}(),
			want: "providers.x.type",
		},
		{
			name: "judge without provider",
			cfg: func() Config {
				c := base
				c.Arbiter.Strategy = "judge"
				return c
			}(),
			want: "arbiter.judge_provider",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
