// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/config"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aiwaiter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func hasErrorAbout(errs []error, field string) bool {
	for _, err := range errs {
		if strings.Contains(err.Error(), field) {
			return true
		}
	}
	return false
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Networking: config.NetworkingConfig{
			Listen: "127.0.0.1:8080",
		},
		Providers: map[string]config.ProviderConfig{
			"anthropic": {APIKey: "test-key"},
		},
		Models: config.ModelsConfig{
			Default:  "anthropic/claude-sonnet-4-5",
			Failover: []string{"anthropic/claude-haiku-4-5"},
		},
		Storage: config.StorageConfig{Backend: "sqlite", Path: "aiwaiter.db"},
		Runtime: config.RuntimeConfig{
			ConfigCacheTTL:     time.Minute,
			RetrievalFreshness: 5 * time.Minute,
			ToolTimeout:        10 * time.Second,
		},
		Telemetry: config.TelemetryConfig{SummaryMaxChars: 500},
		Logging:   config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Networking.Listen)
	assert.Equal(t, 90*time.Second, cfg.Networking.WriteTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 60*time.Second, cfg.Runtime.ConfigCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.Runtime.RetrievalFreshness)
	assert.Equal(t, 500, cfg.Telemetry.SummaryMaxChars)
	assert.Equal(t, 10000, cfg.Networking.RateLimit.MaxVisitors)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
networking:
  listen: "0.0.0.0:9999"
  cors_origins: ["https://menu.example.com"]
providers:
  openai:
    api_key: "test-key"
models:
  default: "openai/gpt-4.1"
agents:
  waiter:
    max_tokens: 512
    temperature: 0.3
pricing:
  openai/gpt-4.1:
    input_per_million: 2
    output_per_million: 8
runtime:
  config_cache_ttl: 30s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Networking.Listen)
	assert.Equal(t, []string{"https://menu.example.com"}, cfg.Networking.CORSOrigins)
	assert.Equal(t, "openai/gpt-4.1", cfg.Models.Default)
	assert.Equal(t, 30*time.Second, cfg.Runtime.ConfigCacheTTL)

	waiter := cfg.Agent(types.AgentWaiter)
	assert.Equal(t, 512, waiter.MaxTokens)
	assert.InDelta(t, 0.3, waiter.Temperature, 1e-9)
	assert.Equal(t, config.AgentConfig{}, cfg.Agent(types.AgentUpsell))

	assert.Equal(t, config.PriceConfig{InputPerMillion: 2, OutputPerMillion: 8}, cfg.Pricing["openai/gpt-4.1"])
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AIWAITER_NETWORKING_LISTEN", "10.0.0.1:8080")
	t.Setenv("AIWAITER_STORAGE_BACKEND", "postgres")
	t.Setenv("AIWAITER_STORAGE_DSN", "postgres://localhost/aiwaiter")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Networking.Listen)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/aiwaiter", cfg.Storage.DSN)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.True(t, apperr.HasCode(err, apperr.CodeConfigLoadReadFailure))
	})

	t.Run("validation runs at load time", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "storage:\n  backend: mysql\n"))
		require.Error(t, err)
		assert.True(t, apperr.HasCode(err, apperr.CodeConfigValidateInvalidValue))
		assert.Contains(t, err.Error(), "storage.backend")
	})
}

func TestFromViper_UsesSuppliedInstance(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("logging.level", "debug")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDefaultConfigYAML_Loads(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, string(config.DefaultConfigYAML)))
	require.NoError(t, err)
	assert.Equal(t, "keyring://aiwaiter/anthropic", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, 4, cfg.Agent(types.AgentWaiter).MaxToolIterations)
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"empty listen", func(c *config.Config) { c.Networking.Listen = "" }, "networking.listen"},
		{"missing port", func(c *config.Config) { c.Networking.Listen = "127.0.0.1" }, "networking.listen"},
		{"port zero", func(c *config.Config) { c.Networking.Listen = "127.0.0.1:0" }, "networking.listen"},
		{"port too high", func(c *config.Config) { c.Networking.Listen = "127.0.0.1:70000" }, "networking.listen"},
		{"negative rate", func(c *config.Config) { c.Networking.RateLimit.RequestsPerSecond = -1 }, "rate_limit.requests_per_second"},
		{"rate without burst", func(c *config.Config) { c.Networking.RateLimit.RequestsPerSecond = 2 }, "rate_limit.burst"},
		{"negative visitors", func(c *config.Config) { c.Networking.RateLimit.MaxVisitors = -1 }, "rate_limit.max_visitors"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "mysql" }, "storage.backend"},
		{"sqlite without path", func(c *config.Config) { c.Storage.Path = "" }, "storage.path"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Backend = "postgres" }, "storage.dsn"},
		{"empty default model", func(c *config.Config) { c.Models.Default = "" }, "models.default"},
		{"model without provider", func(c *config.Config) { c.Models.Default = "plain-model" }, "models.default"},
		{"unconfigured provider", func(c *config.Config) { c.Models.Default = "openai/gpt-4.1" }, "openai"},
		{"unconfigured failover", func(c *config.Config) { c.Models.Failover = []string{"google/gemini-2.5-flash"} }, "models.failover[0]"},
		{"negative price", func(c *config.Config) {
			c.Pricing = map[string]config.PriceConfig{"anthropic/x": {InputPerMillion: -1}}
		}, "pricing.anthropic/x"},
		{"unknown agent", func(c *config.Config) {
			c.Agents = map[string]config.AgentConfig{"sommelier": {}}
		}, "agents.sommelier"},
		{"agent temperature", func(c *config.Config) {
			c.Agents = map[string]config.AgentConfig{"waiter": {Temperature: 3}}
		}, "agents.waiter.temperature"},
		{"agent model", func(c *config.Config) {
			c.Agents = map[string]config.AgentConfig{"upsell": {Model: "openai/gpt-4.1"}}
		}, "agents.upsell.model"},
		{"agent tokens", func(c *config.Config) {
			c.Agents = map[string]config.AgentConfig{"allergen_guardian": {MaxTokens: -5}}
		}, "agents.allergen_guardian.max_tokens"},
		{"cache ttl", func(c *config.Config) { c.Runtime.ConfigCacheTTL = 0 }, "runtime.config_cache_ttl"},
		{"freshness", func(c *config.Config) { c.Runtime.RetrievalFreshness = -time.Second }, "runtime.retrieval_freshness"},
		{"tool timeout", func(c *config.Config) { c.Runtime.ToolTimeout = 0 }, "runtime.tool_timeout"},
		{"summary chars", func(c *config.Config) { c.Telemetry.SummaryMaxChars = 0 }, "telemetry.summary_max_chars"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			assert.True(t, hasErrorAbout(errs, tt.field), "expected error about %s, got: %v", tt.field, errs)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Networking.Listen = ""
	cfg.Storage.Backend = ""
	cfg.Logging.Format = ""

	errs := cfg.Validate()
	assert.Len(t, errs, 3)
}

func TestValidate_NoProvidersSection(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = nil
	cfg.Models.Default = "openai/gpt-4.1"
	assert.Empty(t, cfg.Validate(), "keys may come from the environment")
}

func TestResolveSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["openai"] = config.ProviderConfig{APIKey: "keyring://aiwaiter/openai"}
	cfg.Providers["google"] = config.ProviderConfig{APIKey: "keyring://aiwaiter/missing"}

	err := cfg.ResolveSecrets(func(v string) (string, error) {
		switch v {
		case "keyring://aiwaiter/openai":
			return "sk-resolved", nil
		case "keyring://aiwaiter/missing":
			return "", errors.New("not found")
		}
		return v, nil
	})

	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeSecretResolveFailure))
	assert.Contains(t, err.Error(), "providers.google.api_key")
	assert.Equal(t, "sk-resolved", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "test-key", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, "keyring://aiwaiter/missing", cfg.Providers["google"].APIKey)
}
