// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func TestNewServerClient_BaseURL(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:8080":         "http://127.0.0.1:8080",
		"http://localhost:8080/": "http://localhost:8080",
		"https://waiter.example": "https://waiter.example",
	}
	for addr, want := range tests {
		assert.Equal(t, want, newServerClient(addr).baseURL, addr)
	}
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServerClient_NotRunning(t *testing.T) {
	err := newServerClient(closedAddr(t)).getJSON(context.Background(), "/health", nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeCLIServerNotRunning))
}

func TestServerClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	err := newServerClient(srv.URL).getJSON(context.Background(), "/health", nil)
	apiErr, ok := serverAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
	assert.Equal(t, "upstream gone", apiErr.Message)
}

func TestServerClient_ValidationDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_input","message":"validation failed","details":[{"message":"expected length >= 1","location":"body.message"}]}`))
	}))
	t.Cleanup(srv.Close)

	err := newServerClient(srv.URL).postJSON(context.Background(), "/agents/waiter", map[string]string{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body.message: expected length >= 1")
}

func TestServerClient_BadJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(srv.Close)

	var dest map[string]any
	err := newServerClient(srv.URL).getJSON(context.Background(), "/health", &dest)
	assert.True(t, apperr.HasCode(err, apperr.CodeCLIResponseInvalid))
}
