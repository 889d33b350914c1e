// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package runtimecfg_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/runtimecfg"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/store/storetest"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

var fixedNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type cacheCounter struct{ hits, misses int }

func (c *cacheCounter) ObserveConfigCache(hit bool) {
	if hit {
		c.hits++
		return
	}
	c.misses++
}

func newResolver(mem *storetest.Memory, opts ...runtimecfg.Option) (*runtimecfg.Resolver, *fakeClock) {
	clock := &fakeClock{t: fixedNow}
	opts = append([]runtimecfg.Option{runtimecfg.WithClock(clock.Now)}, opts...)
	return runtimecfg.NewResolver(mem, mem, opts...), clock
}

func TestResolve_TenantRowTakesPrecedence(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, Enabled: true, Instructions: "global"})
	mem.PutRuntimeConfig(store.RuntimeConfig{
		AgentType: types.AgentWaiter, TenantID: "tenant-1", Enabled: true,
		Instructions: "tenant", ToolAllowlist: []string{"get_menu"}, AutonomyLevel: 2,
	})
	r, _ := newResolver(mem)

	cfg, err := r.Resolve(context.Background(), types.AgentWaiter, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant", cfg.Instructions)
	assert.Equal(t, runtimecfg.SourceTenant, cfg.Source)
	assert.Equal(t, []string{"get_menu"}, cfg.ToolAllowlist)
	assert.Equal(t, types.AutonomyL2, cfg.AutonomyLevel)
}

func TestResolve_GlobalFallbackCachedUnderTenantKey(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentUpsell, Enabled: true, Instructions: "global"})
	r, _ := newResolver(mem)

	cfg, err := r.Resolve(context.Background(), types.AgentUpsell, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "global", cfg.Instructions)
	assert.Equal(t, runtimecfg.SourceGlobal, cfg.Source)
	assert.Equal(t, 2, mem.ConfigReads)

	_, err = r.Resolve(context.Background(), types.AgentUpsell, "tenant-1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), types.AgentUpsell, "")
	require.NoError(t, err)
	assert.Equal(t, 2, mem.ConfigReads, "both keys should be served from cache")
}

func TestResolve_DefaultsWithoutRows(t *testing.T) {
	r, _ := newResolver(storetest.New())

	cfg, err := r.Resolve(context.Background(), types.AgentAllergenGuardian, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, runtimecfg.DefaultConfig(types.AgentAllergenGuardian), cfg)
	assert.True(t, cfg.Enabled)
	assert.Zero(t, cfg.SessionBudgetUSD)
	assert.Zero(t, cfg.DailyBudgetUSD)
}

func TestResolve_ExpiresAfterTTL(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, Enabled: true})
	counter := &cacheCounter{}
	r, clock := newResolver(mem, runtimecfg.WithObserver(counter))

	_, err := r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	clock.Advance(runtimecfg.DefaultTTL - time.Second)
	_, err = r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	assert.Equal(t, 1, mem.ConfigReads)

	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, Enabled: false})
	clock.Advance(time.Second)
	cfg, err := r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	assert.Equal(t, 2, mem.ConfigReads)
	assert.False(t, cfg.Enabled)

	assert.Equal(t, 1, counter.hits)
	assert.Equal(t, 2, counter.misses)
}

func TestResolve_InvalidateForcesReload(t *testing.T) {
	mem := storetest.New()
	r, _ := newResolver(mem)

	_, err := r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	r.Invalidate(types.AgentWaiter, "")
	_, err = r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	assert.Equal(t, 2, mem.ConfigReads)
}

func TestResolve_CachedCopyIsImmutable(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, Enabled: true, ToolAllowlist: []string{"get_menu"}})
	r, _ := newResolver(mem)

	cfg, err := r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	cfg.ToolAllowlist[0] = "create_order"

	again, err := r.Resolve(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"get_menu"}, again.ToolAllowlist)
}

func TestResolve_StoreFailure(t *testing.T) {
	mem := storetest.New()
	mem.ErrRuntimeConfig = errors.New("connection reset")
	r, _ := newResolver(mem)

	_, err := r.Resolve(context.Background(), types.AgentWaiter, "tenant-1")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeStoreDatabaseFailure))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
}

func TestEnsureAgentEnabled_Disabled(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, TenantID: "tenant-1", Enabled: false})
	r, _ := newResolver(mem)

	_, err := r.EnsureAgentEnabled(context.Background(), types.AgentWaiter, "tenant-1")
	require.Error(t, err)
	assert.True(t, apperr.IsDisabled(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(err))
}

func TestEnsureAgentEnabled_DailyBudget(t *testing.T) {
	tests := []struct {
		name    string
		spent   float64
		wantErr bool
	}{
		{name: "under ceiling", spent: 0.99},
		{name: "at ceiling", spent: 1.0, wantErr: true},
		{name: "over ceiling", spent: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storetest.New()
			mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentUpsell, TenantID: "tenant-1", Enabled: true, DailyBudgetUSD: 1})
			mem.Events = append(mem.Events,
				store.AgentEvent{AgentType: types.AgentUpsell, TenantID: "tenant-1", CostUSD: tt.spent, CreatedAt: fixedNow.Add(-time.Hour)},
				// Yesterday's spend does not count.
				store.AgentEvent{AgentType: types.AgentUpsell, TenantID: "tenant-1", CostUSD: 10, CreatedAt: fixedNow.Add(-24 * time.Hour)},
			)
			r, _ := newResolver(mem)

			_, err := r.EnsureAgentEnabled(context.Background(), types.AgentUpsell, "tenant-1")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, apperr.CodeAgentDailyBudgetExceeded))
			assert.Equal(t, http.StatusTooManyRequests, apperr.HTTPStatus(err))
			assert.Contains(t, err.Error(), "budget")
		})
	}
}

func TestEnsureAgentEnabled_AcknowledgesPendingSyncOnce(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, Enabled: true, SyncPending: true})
	r, _ := newResolver(mem)

	cfg, err := r.EnsureAgentEnabled(context.Background(), types.AgentWaiter, "tenant-1")
	require.NoError(t, err)
	assert.False(t, cfg.SyncPending)
	assert.Equal(t, []string{"waiter:"}, mem.Acks, "the global row supplied the config")

	_, err = r.EnsureAgentEnabled(context.Background(), types.AgentWaiter, "tenant-1")
	require.NoError(t, err)
	_, err = r.EnsureAgentEnabled(context.Background(), types.AgentWaiter, "")
	require.NoError(t, err)
	assert.Len(t, mem.Acks, 1)
}

func TestEnsureAgentEnabled_AcknowledgeFailureIsSwallowed(t *testing.T) {
	mem := storetest.New()
	mem.PutRuntimeConfig(store.RuntimeConfig{AgentType: types.AgentWaiter, TenantID: "tenant-1", Enabled: true, SyncPending: true})
	mem.ErrAcknowledge = errors.New("rpc unavailable")
	r, _ := newResolver(mem)

	cfg, err := r.EnsureAgentEnabled(context.Background(), types.AgentWaiter, "tenant-1")
	require.NoError(t, err)
	assert.False(t, cfg.SyncPending)

	cached, err := r.Resolve(context.Background(), types.AgentWaiter, "tenant-1")
	require.NoError(t, err)
	assert.False(t, cached.SyncPending)
}

func TestApply_TTLMinimality(t *testing.T) {
	sc := &session.Context{
		RetrievalTTL: 5 * time.Minute,
		Retrieval: map[string]session.Snapshot{
			session.SnapshotMenu:      {Name: session.SnapshotMenu, ExpiresAt: fixedNow.Add(time.Hour)},
			session.SnapshotAllergens: {Name: session.SnapshotAllergens, ExpiresAt: fixedNow.Add(time.Hour)},
			session.SnapshotPolicies:  {Name: session.SnapshotPolicies, ExpiresAt: fixedNow.Add(time.Hour)},
		},
	}

	ten := runtimecfg.DefaultConfig(types.AgentUpsell)
	ten.RetrievalTTLMinutes = 10
	five := runtimecfg.DefaultConfig(types.AgentAllergenGuardian)
	five.RetrievalTTLMinutes = 5
	five.Instructions = "be strict"

	runtimecfg.Apply(sc, types.AgentUpsell, ten, fixedNow)
	runtimecfg.Apply(sc, types.AgentAllergenGuardian, five, fixedNow)

	assert.Equal(t, 5*time.Minute, sc.RetrievalTTL)
	for name, snap := range sc.Retrieval {
		assert.Equal(t, fixedNow.Add(5*time.Minute), snap.ExpiresAt, name)
	}
	o, ok := sc.OverrideFor(types.AgentAllergenGuardian)
	require.True(t, ok)
	assert.Equal(t, "be strict", o.Instructions)
	assert.Equal(t, 5*time.Minute, o.RetrievalTTL)
}

func TestApply_UnsetTTLKeepsCurrent(t *testing.T) {
	sc := &session.Context{RetrievalTTL: 3 * time.Minute}
	cfg := runtimecfg.DefaultConfig(types.AgentWaiter)
	cfg.RetrievalTTLMinutes = 0

	runtimecfg.Apply(sc, types.AgentWaiter, cfg, fixedNow)
	assert.Equal(t, 3*time.Minute, sc.RetrievalTTL)
}

func TestConfig_Limits(t *testing.T) {
	cfg := runtimecfg.Config{SessionBudgetUSD: 0.5, DailyBudgetUSD: 20}
	limits := cfg.Limits()
	assert.InDelta(t, 0.5, limits.SessionUSD, 1e-9)
	assert.InDelta(t, 20.0, limits.DailyUSD, 1e-9)
}
