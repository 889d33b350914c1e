// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package config loads service configuration with viper.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. AIWAITER_NETWORKING_LISTEN.
const EnvPrefix = "AIWAITER"

// Config is the top-level service configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Models     ModelsConfig              `mapstructure:"models"`
	Agents     map[string]AgentConfig    `mapstructure:"agents"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Runtime    RuntimeConfig             `mapstructure:"runtime"`
	Pricing    map[string]PriceConfig    `mapstructure:"pricing"`
	Telemetry  TelemetryConfig           `mapstructure:"telemetry"`
	Logging    LoggingConfig             `mapstructure:"logging"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen       string          `mapstructure:"listen"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is the per-IP request limit. Zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxVisitors       int     `mapstructure:"max_visitors"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider. APIKey
// may be a keyring://service/key reference.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig selects the default model and failover chain.
type ModelsConfig struct {
	Default  string   `mapstructure:"default"`
	Failover []string `mapstructure:"failover"`
	// TenantOverrides routes a tenant's default-model requests elsewhere.
	TenantOverrides map[string]string `mapstructure:"tenant_overrides"`
}

// AgentConfig tunes one agent. An empty Model uses models.default.
type AgentConfig struct {
	Model             string  `mapstructure:"model"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxToolIterations int     `mapstructure:"max_tool_iterations"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// RuntimeConfig holds cache and timing knobs.
type RuntimeConfig struct {
	ConfigCacheTTL     time.Duration `mapstructure:"config_cache_ttl"`
	RetrievalFreshness time.Duration `mapstructure:"retrieval_freshness"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`
}

// PriceConfig overrides the built-in price of one model, in USD per million
// tokens.
type PriceConfig struct {
	InputPerMillion  float64 `mapstructure:"input_per_million"`
	OutputPerMillion float64 `mapstructure:"output_per_million"`
}

// TelemetryConfig controls audit persistence.
type TelemetryConfig struct {
	SummaryMaxChars int  `mapstructure:"summary_max_chars"`
	Metrics         bool `mapstructure:"metrics"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8080")
	v.SetDefault("networking.read_timeout", 30*time.Second)
	v.SetDefault("networking.write_timeout", 90*time.Second)
	v.SetDefault("networking.rate_limit.requests_per_second", 0)
	v.SetDefault("networking.rate_limit.burst", 10)
	v.SetDefault("networking.rate_limit.max_visitors", 10000)
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "aiwaiter.db")
	v.SetDefault("runtime.config_cache_ttl", 60*time.Second)
	v.SetDefault("runtime.retrieval_freshness", 5*time.Minute)
	v.SetDefault("runtime.tool_timeout", 10*time.Second)
	v.SetDefault("telemetry.summary_max_chars", 500)
	v.SetDefault("telemetry.metrics", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv enables AIWAITER_-prefixed environment overrides on v.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (optional) over defaults and
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.Wrapf(err, apperr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, apperr.Wrap(errors.Join(errs...), apperr.CodeConfigValidateInvalidValue, "validating config")
	}
	return &cfg, nil
}

// Agent returns the tuning for agent, zero when unset.
func (c *Config) Agent(agent types.AgentType) AgentConfig {
	return c.Agents[agent.String()]
}

// ResolveSecrets replaces every provider API key with resolve(key).
func (c *Config) ResolveSecrets(resolve func(string) (string, error)) error {
	var errs []error
	for name, p := range c.Providers {
		key, err := resolve(p.APIKey)
		if err != nil {
			errs = append(errs, apperr.Wrapf(err, apperr.CodeSecretResolveFailure, "providers.%s.api_key", name))
			continue
		}
		p.APIKey = key
		c.Providers[name] = p
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the configuration for logical errors. It returns every
// problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateAgents()...)
	errs = append(errs, c.validateRuntime()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func invalid(format string, args ...any) error {
	return apperr.Errorf(apperr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Networking.Listen); err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %v", c.Networking.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %q", portStr))
	}

	rl := c.Networking.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("networking.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("networking.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}
	if rl.MaxVisitors < 0 {
		errs = append(errs, invalid("networking.rate_limit.max_visitors must not be negative, got %d", rl.MaxVisitors))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return []error{invalid("storage.path is required for the sqlite backend")}
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return []error{invalid("storage.dsn is required for the postgres backend")}
		}
	default:
		return []error{invalid("storage.backend must be one of [sqlite, postgres], got %q", c.Storage.Backend)}
	}
	return nil
}

func (c *Config) validateModelRef(field, ref string) error {
	if !strings.Contains(ref, "/") {
		return invalid("%s must be in \"provider/model\" format, got %q", field, ref)
	}
	// A missing providers section means keys come from the environment.
	if c.Providers == nil {
		return nil
	}
	name := providerFromModel(ref)
	if _, ok := c.Providers[name]; !ok {
		return invalid("%s %q references provider %q which is not configured", field, ref, name)
	}
	return nil
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, invalid("models.default must not be empty"))
	} else if err := c.validateModelRef("models.default", c.Models.Default); err != nil {
		errs = append(errs, err)
	}
	for i, ref := range c.Models.Failover {
		if err := c.validateModelRef("models.failover["+strconv.Itoa(i)+"]", ref); err != nil {
			errs = append(errs, err)
		}
	}
	for tenantID, ref := range c.Models.TenantOverrides {
		if err := c.validateModelRef("models.tenant_overrides."+tenantID, ref); err != nil {
			errs = append(errs, err)
		}
	}
	for model, p := range c.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			errs = append(errs, invalid("pricing.%s must not be negative", model))
		}
	}

	return errs
}

func (c *Config) validateAgents() []error {
	var errs []error
	for name, a := range c.Agents {
		if _, err := types.ParseAgentType(name); err != nil {
			errs = append(errs, invalid("agents.%s: unknown agent type", name))
			continue
		}
		if a.Model != "" {
			if err := c.validateModelRef("agents."+name+".model", a.Model); err != nil {
				errs = append(errs, err)
			}
		}
		if a.MaxTokens < 0 {
			errs = append(errs, invalid("agents.%s.max_tokens must not be negative, got %d", name, a.MaxTokens))
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, invalid("agents.%s.temperature must be between 0 and 2, got %g", name, a.Temperature))
		}
		if a.MaxToolIterations < 0 {
			errs = append(errs, invalid("agents.%s.max_tool_iterations must not be negative, got %d", name, a.MaxToolIterations))
		}
	}
	return errs
}

func (c *Config) validateRuntime() []error {
	var errs []error
	if c.Runtime.ConfigCacheTTL <= 0 {
		errs = append(errs, invalid("runtime.config_cache_ttl must be positive, got %s", c.Runtime.ConfigCacheTTL))
	}
	if c.Runtime.RetrievalFreshness <= 0 {
		errs = append(errs, invalid("runtime.retrieval_freshness must be positive, got %s", c.Runtime.RetrievalFreshness))
	}
	if c.Runtime.ToolTimeout <= 0 {
		errs = append(errs, invalid("runtime.tool_timeout must be positive, got %s", c.Runtime.ToolTimeout))
	}
	if c.Telemetry.SummaryMaxChars <= 0 {
		errs = append(errs, invalid("telemetry.summary_max_chars must be positive, got %d", c.Telemetry.SummaryMaxChars))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}
	return errs
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
