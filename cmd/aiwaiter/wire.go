// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/tablewise/aiwaiter/internal/agent"
	"github.com/tablewise/aiwaiter/internal/budget"
	"github.com/tablewise/aiwaiter/internal/config"
	"github.com/tablewise/aiwaiter/internal/pipeline"
	"github.com/tablewise/aiwaiter/internal/provider"
	anthropicprov "github.com/tablewise/aiwaiter/internal/provider/anthropic"
	googleprov "github.com/tablewise/aiwaiter/internal/provider/google"
	openaiprov "github.com/tablewise/aiwaiter/internal/provider/openai"
	"github.com/tablewise/aiwaiter/internal/redact"
	"github.com/tablewise/aiwaiter/internal/runtimecfg"
	"github.com/tablewise/aiwaiter/internal/secrets"
	"github.com/tablewise/aiwaiter/internal/server"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
	_ "github.com/tablewise/aiwaiter/internal/store/postgres" // register postgres backend
	_ "github.com/tablewise/aiwaiter/internal/store/sqlite"   // register sqlite backend
	"github.com/tablewise/aiwaiter/internal/telemetry"
	"github.com/tablewise/aiwaiter/internal/tools"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server       *server.Server
	Store        store.Store
	Providers    *provider.Registry
	Orchestrator *pipeline.Orchestrator
	Metrics      *telemetry.Metrics
}

// openStore is a variable so tests can substitute an in-memory store.
var openStore = func(cfg *config.Config) (store.Store, error) {
	return store.Open(&store.StorageConfig{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		DSN:     cfg.Storage.DSN,
	})
}

// Wire creates all subsystems from cfg and connects them. Provider API keys
// must already be resolved.
func Wire(_ context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}

	app, err := wireWithStore(cfg, st, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return app, nil
}

func wireWithStore(cfg *config.Config, st store.Store, log *slog.Logger) (*App, error) {
	reg := provider.NewRegistry()
	registerBuiltinProviders(cfg, reg, log)
	if len(reg.Names()) == 0 {
		log.Warn("no LLM providers registered; every agent call will fail until one is configured")
	}
	if err := configureRouting(cfg.Models, reg, log); err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics {
		metrics = telemetry.NewMetrics()
	}

	events := telemetry.NewLogger(st,
		telemetry.WithRedactor(redact.New(redact.DefaultRules()...)),
		telemetry.WithMetrics(metrics),
		telemetry.WithSlog(log),
		telemetry.WithSummaryMaxChars(cfg.Telemetry.SummaryMaxChars),
	)

	dispatcher, err := tools.NewDispatcher(tools.Config{
		Orders:         st,
		Proposals:      events,
		DefaultTimeout: cfg.Runtime.ToolTimeout,
		Logger:         log,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCLISetupFailure, "creating tool dispatcher")
	}

	runner, err := agent.NewRunner(agent.Config{
		Router:   reg,
		Tools:    dispatcher,
		Profiles: agentProfiles(cfg),
		Logger:   log,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCLISetupFailure, "creating agent runner")
	}

	orch, err := pipeline.New(pipeline.Deps{
		Contexts: session.NewBuilder(st, session.WithFreshness(cfg.Runtime.RetrievalFreshness)),
		Configs: runtimecfg.NewResolver(st, st,
			runtimecfg.WithTTL(cfg.Runtime.ConfigCacheTTL),
			runtimecfg.WithLogger(log),
			runtimecfg.WithObserver(metrics),
		),
		Runner:   runner,
		Budget:   budget.NewEnforcer(st),
		Prices:   budget.NewPriceTable(priceOverrides(cfg.Pricing)),
		Sessions: st,
		Events:   events,
		Metrics:  metrics,
		Logger:   log,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCLISetupFailure, "creating pipeline")
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Networking.Listen,
		CORSOrigins:  cfg.Networking.CORSOrigins,
		ReadTimeout:  cfg.Networking.ReadTimeout,
		WriteTimeout: cfg.Networking.WriteTimeout,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimit.RequestsPerSecond,
			Burst:             cfg.Networking.RateLimit.Burst,
			MaxVisitors:       cfg.Networking.RateLimit.MaxVisitors,
		},
		Version: version,
		Logger:  log,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCLISetupFailure, "creating server")
	}

	var metricsHandler http.Handler
	if metrics != nil {
		metricsHandler = metrics.Handler()
	}
	services, err := server.NewServices(orch, reg, metricsHandler)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCLISetupFailure, "creating services")
	}
	srv.RegisterServices(services)

	return &App{
		Server:       srv,
		Store:        st,
		Providers:    reg,
		Orchestrator: orch,
		Metrics:      metrics,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	type closer interface{ Close() error }
	closers := []closer{a.Server, a.Providers, a.Store}

	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// configureRouting applies the default model, failover chain and tenant
// overrides. References to providers that failed to register are logged and
// skipped so the server can still start and report degraded health.
func configureRouting(models config.ModelsConfig, reg *provider.Registry, log *slog.Logger) error {
	skip := func(err error, field, ref string) error {
		if apperr.HasCode(err, apperr.CodeProviderNotFound) {
			log.Warn("model provider is not registered, skipping", "field", field, "model", ref)
			return nil
		}
		return apperr.Wrapf(err, apperr.CodeCLISetupFailure, "setting %s %s", field, ref)
	}

	if models.Default != "" {
		if err := reg.SetDefault(models.Default); err != nil {
			if err := skip(err, "models.default", models.Default); err != nil {
				return err
			}
		}
	}

	var chain []string
	for _, ref := range models.Failover {
		name, _ := provider.ParseRef(ref)
		if _, err := reg.Get(name); err != nil {
			log.Warn("failover provider is not registered, skipping", "model", ref)
			continue
		}
		chain = append(chain, ref)
	}
	if len(chain) > 0 {
		if err := reg.SetFailover(chain); err != nil {
			return apperr.Wrap(err, apperr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	for tenantID, ref := range models.TenantOverrides {
		if err := reg.SetOverride(tenantID, ref); err != nil {
			if err := skip(err, "models.tenant_overrides."+tenantID, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func agentProfiles(cfg *config.Config) map[types.AgentType]agent.Profile {
	profiles := make(map[types.AgentType]agent.Profile, len(types.AgentTypes))
	for _, at := range types.AgentTypes {
		ac := cfg.Agent(at)
		profiles[at] = agent.Profile{
			Model:             ac.Model,
			MaxTokens:         ac.MaxTokens,
			Temperature:       float32(ac.Temperature),
			MaxToolIterations: ac.MaxToolIterations,
		}
	}
	return profiles
}

func priceOverrides(pricing map[string]config.PriceConfig) map[string]budget.Price {
	if len(pricing) == 0 {
		return nil
	}
	out := make(map[string]budget.Price, len(pricing))
	for model, p := range pricing {
		out[model] = budget.Price{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
	}
	return out
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories is a variable so tests can inject fakes.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// providerKeyEnv names the vendor environment variable read for each built-in
// provider when the config has no providers section.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

func providersFromEnv() map[string]config.ProviderConfig {
	out := make(map[string]config.ProviderConfig)
	for name, env := range providerKeyEnv {
		if key := os.Getenv(env); key != "" {
			out[name] = config.ProviderConfig{APIKey: key}
		}
	}
	return out
}

// registerBuiltinProviders registers every configured provider with a usable
// key. Unknown names, empty keys and unresolved keyring references are logged
// and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, log *slog.Logger) {
	providers := cfg.Providers
	if providers == nil {
		providers = providersFromEnv()
	}
	for name, pc := range providers {
		if pc.APIKey == "" || secrets.IsKeyringURI(pc.APIKey) {
			log.Warn("skipping provider without a usable API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			log.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			log.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		log.Info("registered provider", "provider", name)
	}
}
