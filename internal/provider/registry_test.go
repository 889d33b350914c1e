// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/provider"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func newRegistry(t *testing.T, providers ...*mockProvider) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.RegisterProvider(p.name, p))
	}
	return reg
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := newRegistry(t, newMockProvider("anthropic", true))

	got, err := reg.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Name())

	_, err = reg.Get("nonexistent")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderNotFound))

	err = reg.RegisterProvider("", nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderRequestInvalid))
}

func TestRegistry_Route(t *testing.T) {
	reg := newRegistry(t, newMockProvider("anthropic", true), newMockProvider("openai", true))
	require.NoError(t, reg.SetDefault("anthropic/claude-sonnet-4-5"))
	require.NoError(t, reg.SetOverride("tenant-eu", "openai/gpt-4.1-mini"))

	tests := []struct {
		name         string
		tenant       string
		ref          string
		wantProvider string
		wantModel    string
	}{
		{name: "default", wantProvider: "anthropic", wantModel: "claude-sonnet-4-5"},
		{name: "default keyword", ref: "default", wantProvider: "anthropic", wantModel: "claude-sonnet-4-5"},
		{name: "tenant override", tenant: "tenant-eu", wantProvider: "openai", wantModel: "gpt-4.1-mini"},
		{name: "explicit ref beats override", tenant: "tenant-eu", ref: "anthropic/claude-haiku-4-5", wantProvider: "anthropic", wantModel: "claude-haiku-4-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, model, err := reg.Route(context.Background(), tt.tenant, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, p.Name())
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestRegistry_RouteErrors(t *testing.T) {
	reg := newRegistry(t, newMockProvider("anthropic", true))

	_, _, err := reg.Route(context.Background(), "", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderNoDefault))

	_, _, err = reg.Route(context.Background(), "", "claude-sonnet-4-5")
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderInvalidModelRef))

	err = reg.SetDefault("missing/model")
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderNotFound))

	err = reg.SetDefault("anthropic")
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderInvalidModelRef))
}

func TestRegistry_Failover(t *testing.T) {
	primary := newMockProvider("anthropic", false)
	backup := newMockProvider("openai", true)
	last := newMockProvider("google", true)
	reg := newRegistry(t, primary, backup, last)
	require.NoError(t, reg.SetDefault("anthropic/claude-sonnet-4-5"))
	require.NoError(t, reg.SetFailover([]string{"openai/gpt-4.1-mini", "google/gemini-2.5-flash"}))
	assert.Equal(t, 3, reg.MaxAttempts())

	p, model, err := reg.Route(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1-mini", model)

	p, model, err = reg.RouteExcluding(context.Background(), "", "", []string{"openai"})
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
	assert.Equal(t, "gemini-2.5-flash", model)

	_, _, err = reg.RouteExcluding(context.Background(), "", "", []string{"openai", "google"})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderAllUnavailable))
}

func TestRegistry_StatusesAndClose(t *testing.T) {
	a := newMockProvider("anthropic", true)
	b := newMockProvider("openai", false)
	b.closeErr = errors.New("boom")
	reg := newRegistry(t, a, b)

	assert.Equal(t, []string{"anthropic", "openai"}, reg.Names())
	st := reg.Statuses(context.Background())
	assert.True(t, st["anthropic"].Available)
	assert.False(t, st["openai"].Available)

	err := reg.Close()
	require.Error(t, err)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.ErrorContains(t, err, "boom")
}

func TestParseRef(t *testing.T) {
	name, model := provider.ParseRef("google/models/gemini-2.5-flash")
	assert.Equal(t, "google", name)
	assert.Equal(t, "models/gemini-2.5-flash", model)

	name, model = provider.ParseRef("anthropic")
	assert.Equal(t, "anthropic", name)
	assert.Empty(t, model)
}
