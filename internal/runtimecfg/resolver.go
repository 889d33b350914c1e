// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package runtimecfg resolves per-tenant agent policy with a process-wide TTL
// cache.
package runtimecfg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tablewise/aiwaiter/internal/budget"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/telemetry"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// DefaultTTL bounds how long kill-switch and budget edits can go unnoticed.
const DefaultTTL = 60 * time.Second

const globalKey = "global"

// CacheObserver is notified of every cache lookup.
type CacheObserver interface {
	ObserveConfigCache(hit bool)
}

type entry struct {
	cfg     Config
	expires time.Time
}

// Resolver is safe for concurrent use. Two concurrent misses on the same key
// may both read the store; the last write wins.
type Resolver struct {
	configs  store.RuntimeConfigStore
	spend    store.SpendReader
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger
	observer CacheObserver

	mu    sync.RWMutex
	cache map[string]entry

	ackFailures atomic.Int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets the cache TTL. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

func WithObserver(o CacheObserver) Option {
	return func(r *Resolver) { r.observer = o }
}

// NewResolver builds a resolver reading rows from configs and daily spend from
// spend.
func NewResolver(configs store.RuntimeConfigStore, spend store.SpendReader, opts ...Option) *Resolver {
	r := &Resolver{
		configs: configs,
		spend:   spend,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     slog.Default(),
		cache:   make(map[string]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cacheKey(agent types.AgentType, tenantID string) string {
	if tenantID == "" {
		return string(agent) + ":" + globalKey
	}
	return string(agent) + ":" + tenantID
}

// Resolve returns the config for agent and tenantID. A tenant without its own
// row inherits the global row, and the result is cached under the tenant key
// as well. Without a global row DefaultConfig applies.
func (r *Resolver) Resolve(ctx context.Context, agent types.AgentType, tenantID string) (Config, error) {
	key := cacheKey(agent, tenantID)
	if cfg, ok := r.lookup(key); ok {
		r.observe(true)
		return cfg, nil
	}
	r.observe(false)

	var cfg Config
	row, err := r.configs.GetRuntimeConfig(ctx, agent, tenantID)
	switch {
	case err == nil:
		cfg = fromRow(row)
	case errors.Is(err, store.ErrNotFound) && tenantID != "":
		cfg, err = r.Resolve(ctx, agent, "")
		if err != nil {
			return Config{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		cfg = DefaultConfig(agent)
	default:
		return Config{}, apperr.Wrap(err, apperr.CodeStoreDatabaseFailure, "loading runtime config",
			apperr.FieldAgentType(agent), apperr.FieldTenantID(tenantID))
	}

	r.put(key, cfg)
	return cfg.clone(), nil
}

// EnsureAgentEnabled resolves the config and fails when the agent is switched
// off or today's spend already reached the daily ceiling. A pending sync is
// acknowledged on a best-effort basis.
func (r *Resolver) EnsureAgentEnabled(ctx context.Context, agent types.AgentType, tenantID string) (Config, error) {
	cfg, err := r.Resolve(ctx, agent, tenantID)
	if err != nil {
		return Config{}, err
	}

	if !cfg.Enabled {
		return Config{}, apperr.New(apperr.CodeAgentRuntimeDisabled,
			fmt.Sprintf("agent %s is disabled", agent),
			apperr.FieldAgentType(agent), apperr.FieldTenantID(tenantID))
	}

	if cfg.DailyBudgetUSD > 0 {
		spent, err := budget.SpentToday(ctx, r.spend, agent, tenantID, r.now())
		if err != nil {
			return Config{}, err
		}
		if spent >= cfg.DailyBudgetUSD {
			return Config{}, budget.DailyExceeded(agent, tenantID, spent, cfg.DailyBudgetUSD)
		}
	}

	if cfg.SyncPending {
		r.acknowledge(ctx, agent, tenantID, cfg)
		cfg.SyncPending = false
	}
	return cfg, nil
}

func (r *Resolver) acknowledge(ctx context.Context, agent types.AgentType, tenantID string, cfg Config) {
	// The pending flag is cleared locally either way; the next refresh
	// re-reads the authoritative row.
	defer r.clearPending(cacheKey(agent, tenantID), cacheKey(agent, cfg.TenantID))

	if err := r.configs.AcknowledgeSync(ctx, agent, cfg.TenantID); err != nil {
		consecutive := r.ackFailures.Add(1)
		telemetry.LogEscalating(ctx, r.log, consecutive, "runtime config sync acknowledgement failed",
			slog.Any("error", err),
			slog.String("agent_type", agent.String()),
			slog.String("tenant_id", tenantID),
			slog.String("source", string(cfg.Source)),
			slog.Int64("consecutive_failures", consecutive),
		)
		return
	}
	r.ackFailures.Store(0)
}

// Invalidate drops the cached entry for agent and tenantID.
func (r *Resolver) Invalidate(agent types.AgentType, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, cacheKey(agent, tenantID))
}

func (r *Resolver) lookup(key string) (Config, bool) {
	r.mu.RLock()
	e, ok := r.cache[key]
	r.mu.RUnlock()
	if !ok || !r.now().Before(e.expires) {
		return Config{}, false
	}
	return e.cfg.clone(), true
}

func (r *Resolver) put(key string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = entry{cfg: cfg.clone(), expires: r.now().Add(r.ttl)}
}

func (r *Resolver) clearPending(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		e, ok := r.cache[key]
		if !ok {
			continue
		}
		e.cfg = e.cfg.clone()
		e.cfg.SyncPending = false
		r.cache[key] = e
	}
}

func (r *Resolver) observe(hit bool) {
	if r.observer != nil {
		r.observer.ObserveConfigCache(hit)
	}
}
