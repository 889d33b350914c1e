// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/config"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/store/storetest"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

const demoTableSession = "c3f1d2b4-8e7a-4d6c-9b5f-2a1e0d9c8b31"

// useMemoryStore swaps openStore for an in-memory store.
func useMemoryStore(t *testing.T) *storetest.Memory {
	t.Helper()
	mem := storetest.New()
	orig := openStore
	openStore = func(*config.Config) (store.Store, error) { return mem, nil }
	t.Cleanup(func() { openStore = orig })
	return mem
}

func TestDemoFixtureIsValid(t *testing.T) {
	fx, err := store.ParseFixture(demoFixture)
	require.NoError(t, err)
	assert.Len(t, fx.Locations, 1)
	require.Len(t, fx.Menus, 1)
	assert.Len(t, fx.Menus[0].Items, 6)
	assert.Equal(t, demoTableSession, fx.TableSessions[0].ID)
}

func TestSeedCommand_Demo(t *testing.T) {
	mem := useMemoryStore(t)

	out, err := execute(t, "seed", "--config", writeTestConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 1 location(s), 1 table session(s), 1 menu(s) with 6 item(s), 3 runtime config(s), 0 order(s)")
	assert.Contains(t, out, "aiwaiter chat --table-session "+demoTableSession)

	ts, err := mem.GetTableSession(context.Background(), demoTableSession)
	require.NoError(t, err)
	assert.Equal(t, demoTableSession, ts.ID)
}

func TestSeedCommand_File(t *testing.T) {
	useMemoryStore(t)

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
locations:
  - id: loc-1
    tenant_id: tenant-1
    name: Corner
    currency: USD
`), 0o600))

	out, err := execute(t, "seed", "--config", writeTestConfig(t, ""), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 1 location(s), 0 table session(s), 0 menu(s) with 0 item(s)")
	assert.NotContains(t, out, "Try:")
}

func TestSeedCommand_MissingFile(t *testing.T) {
	useMemoryStore(t)

	_, err := execute(t, "seed", "--config", writeTestConfig(t, ""), "/nonexistent/fixture.yaml")
	assert.True(t, apperr.HasCode(err, apperr.CodeConfigLoadReadFailure))
}

func TestSeedCommand_StoreFailure(t *testing.T) {
	orig := openStore
	openStore = func(*config.Config) (store.Store, error) {
		return nil, apperr.New(apperr.CodeStoreDatabaseFailure, "database locked")
	}
	t.Cleanup(func() { openStore = orig })

	_, err := execute(t, "seed", "--config", writeTestConfig(t, ""))
	assert.True(t, apperr.HasCode(err, apperr.CodeStoreDatabaseFailure))
}
