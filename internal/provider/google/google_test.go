// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package google_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/provider/google"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := google.New(google.Config{})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderRequestInvalid))
}

func TestProvider_Metadata(t *testing.T) {
	p, err := google.New(google.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, models)
	assert.Equal(t, "gemini-2.5-pro", models[0].ID)

	status, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Available)
}

func TestConvertMessages(t *testing.T) {
	contents, err := google.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleSystem, Content: "skip me"},
		{Role: provider.MessageRoleUser, Content: "how busy is the kitchen?"},
		{Role: provider.MessageRoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "get_kitchen_load", Arguments: `{}`}}},
		{Role: provider.MessageRoleTool, ToolCallID: "c1", ToolName: "get_kitchen_load", Content: `{"p90_wait_minutes":12}`},
	})
	require.NoError(t, err)
	require.Len(t, contents, 3)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "get_kitchen_load", contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, map[string]any{}, contents[1].Parts[0].FunctionCall.Args)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "get_kitchen_load", contents[2].Parts[0].FunctionResponse.Name)
}

func TestConvertMessages_BadToolArguments(t *testing.T) {
	_, err := google.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleAssistant, ToolCalls: []provider.ToolCall{{Name: "get_menu", Arguments: "{not json"}}},
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeProviderRequestInvalid))
}

func TestBuildConfig(t *testing.T) {
	cfg := google.BuildConfig(provider.ChatRequest{
		SystemPrompt: "You are a waiter.",
		Options:      provider.ChatOptions{MaxTokens: 256},
		Tools:        []provider.ToolDefinition{{Name: "get_menu"}, {Name: "check_allergens"}},
	})
	assert.Nil(t, cfg.Temperature)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "You are a waiter.", cfg.SystemInstruction.Parts[0].Text)
	require.Len(t, cfg.Tools, 1)
	assert.Len(t, cfg.Tools[0].FunctionDeclarations, 2)
}
