// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/config"
	"github.com/tablewise/aiwaiter/internal/provider"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func redirectConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aiwaiter", "aiwaiter.yaml")
	orig := configPathForWrite
	configPathForWrite = func() (string, error) { return path, nil }
	t.Cleanup(func() { configPathForWrite = orig })
	return path
}

func TestGenerateConfigYAML_Loads(t *testing.T) {
	for _, p := range supportedProviders {
		t.Run(string(p), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "aiwaiter.yaml")
			require.NoError(t, os.WriteFile(path, []byte(GenerateConfigYAML(initResult{Provider: p, APIKey: "k"})), 0o600))

			cfg, err := config.Load(path)
			require.NoError(t, err)
			assert.Equal(t, "keyring://aiwaiter/"+string(p), cfg.Providers[string(p)].APIKey)
			assert.Equal(t, defaultModelForProvider(p), cfg.Models.Default)
			ref, _ := provider.ParseRef(cfg.Models.Default)
			assert.Equal(t, string(p), ref)
		})
	}
}

func TestStoreKeyAndWriteConfig(t *testing.T) {
	path := redirectConfigPath(t)
	store := newMockSecretStore()
	result := initResult{Provider: provider.ProviderOpenAI, APIKey: "sk-test"}

	got, err := storeKeyAndWriteConfig(result, store, false)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "sk-test", store.data["aiwaiter/openai"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = storeKeyAndWriteConfig(result, store, false)
	assert.True(t, apperr.HasCode(err, apperr.CodeConfigAlreadyExists))

	_, err = storeKeyAndWriteConfig(initResult{Provider: provider.ProviderGoogle, APIKey: "g"}, store, true)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "keyring://aiwaiter/google")
}

func TestInitModel_Navigation(t *testing.T) {
	m := newInitModel(newMockSecretStore(), false)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(initModel)
	assert.Equal(t, 1, m.providerIdx)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(initModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(initModel)
	assert.Equal(t, 0, m.providerIdx, "cursor stops at the top")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(initModel)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, provider.ProviderAnthropic, m.result.Provider)
	assert.NotNil(t, cmd)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(initModel)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "API key must not be empty", m.keyErr)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(initModel)
	assert.Equal(t, stepProvider, m.step)
}

func TestInitModel_ValidationFlow(t *testing.T) {
	m := newInitModel(newMockSecretStore(), false)
	m.step = stepValidate
	m.result = initResult{Provider: provider.ProviderOpenAI, APIKey: "bad"}

	next, _ := m.Update(keyInvalidMsg{err: errors.New("provider rejected the key")})
	m = next.(initModel)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "provider rejected the key", m.keyErr)

	next, cmd := m.Update(configWritten{path: "/tmp/aiwaiter.yaml"})
	m = next.(initModel)
	assert.Equal(t, stepDone, m.step)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "/tmp/aiwaiter.yaml")

	next, _ = m.Update(errors.New("keyring locked"))
	m = next.(initModel)
	assert.Equal(t, stepError, m.step)
	assert.Contains(t, m.View(), "keyring locked")
}

func TestInitCommand_RequiresTerminal(t *testing.T) {
	out, err := execute(t, "init")
	assert.True(t, apperr.HasCode(err, apperr.CodeCLISetupFailure))
	assert.Contains(t, out, "requires an interactive terminal")
}
