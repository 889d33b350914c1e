// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/pipeline"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func TestParseCart(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []chatCartLine
		wantErr bool
	}{
		{name: "empty", in: nil, want: []chatCartLine{}},
		{name: "default quantity", in: []string{"burger"}, want: []chatCartLine{{ItemID: "burger", Quantity: 1}}},
		{name: "explicit quantity", in: []string{"fries:3", " spritz:1 "}, want: []chatCartLine{{ItemID: "fries", Quantity: 3}, {ItemID: "spritz", Quantity: 1}}},
		{name: "missing id", in: []string{":2"}, wantErr: true},
		{name: "zero quantity", in: []string{"fries:0"}, wantErr: true},
		{name: "bad quantity", in: []string{"fries:two"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCart(tt.in)
			if tt.wantErr {
				assert.True(t, apperr.HasCode(err, apperr.CodeCLIInputInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderResponse(t *testing.T) {
	out := renderResponse(&pipeline.Response{
		SessionID: "sess-1",
		Reply:     "The sorbet is a light finish.",
		Upsell: []menu.Suggestion{
			{ItemID: "sorbet", Name: "Lemon Sorbet", PriceCents: 600, Currency: "EUR", Rationale: "Clean and cold."},
			{ItemID: "fries", Name: "Fries", PriceCents: 455, Currency: "???"},
		},
		Disclaimers: []string{"Baklava was removed because it contains nuts."},
		Citations:   []string{"menu:sorbet"},
		CostUSD:     0.0042,
	})

	assert.Contains(t, out, "The sorbet is a light finish.")
	assert.Contains(t, out, "Lemon Sorbet")
	assert.Contains(t, out, "6.00")
	assert.Contains(t, out, "4.55 ???")
	assert.Contains(t, out, "Clean and cold.")
	assert.Contains(t, out, "Baklava was removed")
	assert.Contains(t, out, "menu:sorbet")
	assert.Contains(t, out, "session sess-1")
}

func TestChatCommand(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/agents/waiter", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"s-9","reply":"Try the sorbet.","upsell":[],"disclaimers":[],"citations":[],"cost_usd":0.001}`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "chat", "--address", srv.URL,
		"-t", "ts-1", "-a", "nuts", "-a", "dairy", "--cart", "burger:2", "--age-verified",
		"anything", "sweet?")
	require.NoError(t, err)

	assert.Equal(t, "anything sweet?", got.Message)
	assert.Equal(t, "ts-1", got.TableSessionID)
	assert.Equal(t, []string{"nuts", "dairy"}, got.Allergies)
	assert.Equal(t, []chatCartLine{{ItemID: "burger", Quantity: 2}}, got.Cart)
	assert.True(t, got.AgeVerified)
	assert.Contains(t, out, "Try the sorbet.")
	assert.Contains(t, out, "session s-9")
}

func TestChatCommand_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"session_id":"s-1","reply":"Hello","upsell":[],"disclaimers":[],"citations":[],"cost_usd":0}`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "chat", "--address", srv.URL, "-l", "loc-1", "--json", "hi")
	require.NoError(t, err)

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Hello", resp.Reply)
}

func TestChatCommand_RequiresLocation(t *testing.T) {
	_, err := execute(t, "chat", "--address", "127.0.0.1:1", "hi")
	assert.True(t, apperr.HasCode(err, apperr.CodeCLIInputInvalid))
}

func TestChatCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"agent_disabled","message":"The waiter is unavailable right now."}`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "chat", "--address", srv.URL, "-l", "loc-1", "hi")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeCLIResponseInvalid))

	apiErr, ok := serverAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "agent_disabled", apiErr.Code)
	assert.True(t, strings.Contains(out, "The waiter is unavailable right now."))
}
