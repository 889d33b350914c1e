// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"degraded","providers":[{"name":"anthropic","available":false,"message":"rate limited"},{"name":"openai","available":true}]}`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "status", "--address", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "anthropic  unavailable (rate limited)")
	assert.Contains(t, out, "openai     available")
}

func TestStatusCommand_NotRunning(t *testing.T) {
	addr := closedAddr(t)
	out, err := execute(t, "status", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "is not running")
}
