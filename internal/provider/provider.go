// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package provider abstracts the LLM backends the agents run on.
package provider

import (
	"context"
)

// Provider is a streaming chat backend.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Router picks a provider and bare model id for a tenant and a
// "provider/model" reference. An empty reference selects the tenant override
// or the default.
type Router interface {
	Route(ctx context.Context, tenantID, modelRef string) (Provider, string, error)
	RegisterProvider(name string, provider Provider) error
	Close() error
}

// HealthReporter is implemented by providers that track their own failures
// so the router can skip them during a cooldown.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
}

// ChatRequest is one model call.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolDefinition
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions tune a model call. Zero values leave the provider default.
type ChatOptions struct {
	Temperature   float32
	MaxTokens     int
	StopSequences []string
}

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role    MessageRole
	Content string
	// ToolCalls are the calls an assistant turn requested.
	ToolCalls []ToolCall
	// ToolCallID and ToolName identify the call a tool turn answers.
	ToolCallID string
	ToolName   string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// ToolDefinition describes a tool offered to the model. InputSchema is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type     EventType
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
	Error    string
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeToolCall  EventType = "tool_call"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// ToolCall represents a tool invocation by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Merge folds a usage event from the same call into u. Providers report
// running totals, so each field keeps its maximum.
func (u *Usage) Merge(o *Usage) {
	if o == nil {
		return
	}
	u.InputTokens = max(u.InputTokens, o.InputTokens)
	u.OutputTokens = max(u.OutputTokens, o.OutputTokens)
	u.CacheReadTokens = max(u.CacheReadTokens, o.CacheReadTokens)
	u.CacheWriteTokens = max(u.CacheWriteTokens, o.CacheWriteTokens)
}

// Add accumulates the usage of a separate call.
func (u *Usage) Add(o *Usage) {
	if o == nil {
		return
	}
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheWriteTokens += o.CacheWriteTokens
}

// ModelInfo describes a model's capabilities.
type ModelInfo struct {
	ID           string
	Name         string
	Provider     string
	Capabilities ModelCapabilities
}

// ModelCapabilities declares what a model supports.
type ModelCapabilities struct {
	SupportsTools     bool
	SupportsStreaming bool
	MaxContextTokens  int
	MaxOutputTokens   int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
	Health    *HealthSnapshot
}
