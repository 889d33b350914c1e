// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tablewise/aiwaiter/internal/secrets"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func init() {
	keyring.MockInit()
}

var _ secrets.Store = (*secrets.KeyringStore)(nil)

func TestKeyringStore_StoreAndRetrieve(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "test-store-retrieve"

	require.NoError(t, ks.Store(svc, "anthropic", "sk-ant-123"))

	val, err := ks.Retrieve(svc, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-123", val)

	require.NoError(t, ks.Store(svc, "anthropic", "sk-ant-456"))
	val, err = ks.Retrieve(svc, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-456", val, "store overwrites")

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic"}, keys, "overwrite does not duplicate the index")
}

func TestKeyringStore_NotFound(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := ks.Retrieve("no-such-service", "no-key")
	assert.True(t, apperr.HasCode(err, apperr.CodeSecretKeyringNotFound), "got: %v", err)
	assert.True(t, apperr.IsNotFound(err))

	err = ks.Delete("no-such-service", "no-key")
	assert.True(t, apperr.HasCode(err, apperr.CodeSecretKeyringNotFound), "got: %v", err)
}

func TestKeyringStore_DeleteAndList(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "test-delete-list"

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, ks.Store(svc, "openai", "sk-o"))
	require.NoError(t, ks.Store(svc, "anthropic", "sk-a"))
	require.NoError(t, ks.Store(svc, "google", "g-key"))

	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "google", "openai"}, keys)

	require.NoError(t, ks.Delete(svc, "google"))
	_, err = ks.Retrieve(svc, "google")
	assert.True(t, apperr.HasCode(err, apperr.CodeSecretKeyringNotFound))

	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "openai"}, keys)

	require.NoError(t, ks.Delete(svc, "anthropic"))
	require.NoError(t, ks.Delete(svc, "openai"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKeyringStore_InvalidInput(t *testing.T) {
	ks := secrets.NewKeyringStore()

	tests := []struct {
		name string
		call func() error
	}{
		{"store empty service", func() error { return ks.Store("", "k", "v") }},
		{"store empty key", func() error { return ks.Store("svc", "", "v") }},
		{"store empty value", func() error { return ks.Store("svc", "k", "") }},
		{"store reserved key", func() error { return ks.Store("svc", "svc::keys-index", "v") }},
		{"retrieve empty service", func() error { _, err := ks.Retrieve("", "k"); return err }},
		{"retrieve empty key", func() error { _, err := ks.Retrieve("svc", ""); return err }},
		{"delete empty key", func() error { return ks.Delete("svc", "") }},
		{"list empty service", func() error { _, err := ks.List(""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.True(t, apperr.HasCode(err, apperr.CodeSecretInvalidInput), "got: %v", err)
		})
	}
}

func TestKeyringStore_IsolatedServices(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("svc-a", "shared", "value-a"))
	require.NoError(t, ks.Store("svc-b", "shared", "value-b"))

	a, err := ks.Retrieve("svc-a", "shared")
	require.NoError(t, err)
	b, err := ks.Retrieve("svc-b", "shared")
	require.NoError(t, err)
	assert.Equal(t, "value-a", a)
	assert.Equal(t, "value-b", b)
}
