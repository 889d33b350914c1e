// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package providertest provides a scripted provider.Provider for tests.
package providertest

import (
	"context"
	"errors"
	"sync"

	"github.com/tablewise/aiwaiter/internal/provider"
)

// Scripted replays one queued event stream per Chat call and records every
// request. It is safe for concurrent use.
type Scripted struct {
	name string

	mu          sync.Mutex
	turns       [][]provider.ChatEvent
	requests    []provider.ChatRequest
	unavailable bool

	// ChatErr, when set, is returned from Chat instead of a stream.
	ChatErr error
}

// New returns a provider named name.
func New(name string) *Scripted {
	return &Scripted{name: name}
}

// Reply queues a turn that streams text and reports usage.
func (s *Scripted) Reply(text string, in, out int) *Scripted {
	return s.Queue(
		provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: text},
		provider.ChatEvent{Type: provider.EventTypeDone, Usage: &provider.Usage{InputTokens: in, OutputTokens: out}},
	)
}

// CallTool queues a turn that requests one tool call.
func (s *Scripted) CallTool(id, name, args string, in, out int) *Scripted {
	return s.Queue(
		provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &provider.ToolCall{ID: id, Name: name, Arguments: args}},
		provider.ChatEvent{Type: provider.EventTypeDone, Usage: &provider.Usage{InputTokens: in, OutputTokens: out}},
	)
}

// Fail queues a turn that ends in a stream error.
func (s *Scripted) Fail(msg string) *Scripted {
	return s.Queue(provider.ChatEvent{Type: provider.EventTypeError, Error: msg})
}

// Queue appends a raw event stream.
func (s *Scripted) Queue(events ...provider.ChatEvent) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, events)
	return s
}

// SetAvailable toggles Available.
func (s *Scripted) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = !ok
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []provider.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provider.ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Pending reports how many queued turns are unused.
func (s *Scripted) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *Scripted) Name() string { return s.name }

func (s *Scripted) Available(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable
}

func (s *Scripted) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "scripted", Name: "scripted", Provider: s.name}}, nil
}

func (s *Scripted) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.Messages = append([]provider.Message(nil), req.Messages...)
	s.requests = append(s.requests, req)
	if s.ChatErr != nil {
		return nil, s.ChatErr
	}
	if len(s.turns) == 0 {
		return nil, errors.New("scripted provider: no turns left")
	}
	events := s.turns[0]
	s.turns = s.turns[1:]

	ch := make(chan provider.ChatEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (s *Scripted) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: s.Available(ctx), Provider: s.name}, nil
}

func (s *Scripted) Close() error { return nil }
