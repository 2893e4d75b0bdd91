// Package config loads and validates analyzer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Analyzer  AnalyzerConfig            `mapstructure:"analyzer"`
	Fetcher   FetcherConfig             `mapstructure:"fetcher"`
	Headless  HeadlessConfig            `mapstructure:"headless"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Arbiter   ArbiterConfig             `mapstructure:"arbiter"`
	Store     StoreConfig               `mapstructure:"store"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// AnalyzerConfig governs job dispatch and module fan-out.
type AnalyzerConfig struct {
	Concurrency          int `mapstructure:"concurrency"`
	QueueDepth           int `mapstructure:"queue_depth"`
	ModuleTimeoutSeconds int `mapstructure:"module_timeout_seconds"`
}

// FetcherConfig configures the page-fetch collaborator.
type FetcherConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MinContentLength int    `mapstructure:"min_content_length"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ProviderConfig describes one model backend adapter.
type ProviderConfig struct {
	Type            string  `mapstructure:"type"`
	Enabled         bool    `mapstructure:"enabled"`
	Model           string  `mapstructure:"model"`
	APIKeyEnv       string  `mapstructure:"api_key_env"`
	BaseURL         string  `mapstructure:"base_url"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MaxRetries      int     `mapstructure:"max_retries"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// ArbiterConfig selects and tunes the candidate scoring strategy.
type ArbiterConfig struct {
	Strategy        string   `mapstructure:"strategy"`
	MinOutputLength int      `mapstructure:"min_output_length"`
	JudgeProvider   string   `mapstructure:"judge_provider"`
	Priority        []string `mapstructure:"priority"`
}

// StoreConfig bounds job retention in the in-memory store.
type StoreConfig struct {
	RetentionMinutes int `mapstructure:"retention_minutes"`
	MaxJobs          int `mapstructure:"max_jobs"`
	SweepSeconds     int `mapstructure:"sweep_seconds"`
}

// CacheConfig bounds the synchronous analysis result cache.
type CacheConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("analyzer.concurrency", 4)
	v.SetDefault("analyzer.queue_depth", 64)
	v.SetDefault("analyzer.module_timeout_seconds", 120)
	v.SetDefault("fetcher.user_agent", "siteintel-analyzer/0.1")
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("fetcher.min_content_length", 100)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("providers.gemini.type", "gemini")
	v.SetDefault("providers.gemini.enabled", true)
	v.SetDefault("providers.gemini.model", "gemini-1.5-flash")
	v.SetDefault("providers.gemini.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("providers.gemini.timeout_seconds", 60)
	v.SetDefault("providers.gemini.max_retries", 2)
	v.SetDefault("providers.gemini.rps", 1)
	v.SetDefault("providers.gemini.burst", 2)
	v.SetDefault("providers.openai.type", "openai")
	v.SetDefault("providers.openai.enabled", true)
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("providers.openai.timeout_seconds", 60)
	v.SetDefault("providers.openai.max_retries", 2)
	v.SetDefault("providers.openai.rps", 1)
	v.SetDefault("providers.openai.burst", 2)
	v.SetDefault("arbiter.strategy", "heuristic")
	v.SetDefault("arbiter.min_output_length", 80)
	v.SetDefault("arbiter.priority", []string{"gemini", "openai"})
	v.SetDefault("store.retention_minutes", 60)
	v.SetDefault("store.max_jobs", 500)
	v.SetDefault("store.sweep_seconds", 60)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Analyzer.Concurrency <= 0 {
		return fmt.Errorf("analyzer.concurrency must be > 0")
	}
	if c.Analyzer.ModuleTimeoutSeconds <= 0 {
		return fmt.Errorf("analyzer.module_timeout_seconds must be > 0")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for name, p := range c.Providers {
		if p.Type != "gemini" && p.Type != "openai" {
			return fmt.Errorf("providers.%s.type must be gemini or openai", name)
		}
		if p.Enabled && p.Model == "" {
			return fmt.Errorf("providers.%s.model must be set", name)
		}
	}
	switch c.Arbiter.Strategy {
	case "heuristic":
	case "judge":
		if c.Arbiter.JudgeProvider == "" {
			return fmt.Errorf("arbiter.judge_provider must be set when strategy is judge")
		}
	default:
		return fmt.Errorf("arbiter.strategy must be heuristic or judge")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Store.MaxJobs <= 0 {
		return fmt.Errorf("store.max_jobs must be > 0")
	}
	return nil
}

// ModuleTimeout returns the aggregate deadline for one module task.
func (c Config) ModuleTimeout() time.Duration {
	return time.Duration(c.Analyzer.ModuleTimeoutSeconds) * time.Second
}

// FetchTimeout returns the page-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// Retention returns the terminal-job retention window.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Store.RetentionMinutes) * time.Minute
}

// CacheTTL returns the synchronous result cache lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}
