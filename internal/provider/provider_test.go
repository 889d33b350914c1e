// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tablewise/aiwaiter/internal/provider"
)

// mockProvider is a provider.Provider with a toggleable availability.
type mockProvider struct {
	name      string
	available bool
	closeErr  error
	closed    bool
}

func newMockProvider(name string, available bool) *mockProvider {
	return &mockProvider{name: name, available: available}
}

func (m *mockProvider) Name() string                     { return m.name }
func (m *mockProvider) Available(_ context.Context) bool { return m.available }

func (m *mockProvider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return nil, nil
}

func (m *mockProvider) Chat(_ context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 3)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: "hello"}
	ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 5}}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: m.available, Provider: m.name, Message: "ok"}, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return m.closeErr
}

func TestUsage_MergeKeepsRunningMaximum(t *testing.T) {
	u := provider.Usage{}
	u.Merge(&provider.Usage{InputTokens: 120, CacheReadTokens: 40})
	u.Merge(&provider.Usage{InputTokens: 0, OutputTokens: 30})
	u.Merge(&provider.Usage{OutputTokens: 55})
	u.Merge(nil)

	assert.Equal(t, provider.Usage{InputTokens: 120, OutputTokens: 55, CacheReadTokens: 40}, u)
}

func TestUsage_AddAccumulatesCalls(t *testing.T) {
	u := provider.Usage{InputTokens: 100, OutputTokens: 10}
	u.Add(&provider.Usage{InputTokens: 150, OutputTokens: 20, CacheWriteTokens: 5})
	u.Add(nil)

	assert.Equal(t, provider.Usage{InputTokens: 250, OutputTokens: 30, CacheWriteTokens: 5}, u)
}
