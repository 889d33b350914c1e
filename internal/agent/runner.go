// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package agent runs a single LLM-backed agent: model routing, the bounded
// tool loop and usage accounting.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/tools"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// DefaultMaxToolIterations bounds model re-calls after tool results.
const DefaultMaxToolIterations = 4

// ToolFailureDisclaimer is added when a tool call fails and the model has to
// answer without its result.
const ToolFailureDisclaimer = "Some live restaurant data was unavailable, so this answer may be incomplete."

// ToolExecutor offers and runs tools. tools.Dispatcher satisfies it.
type ToolExecutor interface {
	Definitions(agent types.AgentType, sc *session.Context) []provider.ToolDefinition
	Execute(ctx context.Context, call tools.Call, sc *session.Context) (*tools.Result, error)
}

// FailoverRouter is a Router that can retry on a different provider.
// provider.Registry satisfies it.
type FailoverRouter interface {
	provider.Router
	RouteExcluding(ctx context.Context, tenantID, modelRef string, exclude []string) (provider.Provider, string, error)
	MaxAttempts() int
}

// Profile is the static per-agent model configuration.
type Profile struct {
	// Model is a "provider/model" reference. Empty uses the router default.
	Model             string
	Instructions      string
	MaxTokens         int
	Temperature       float32
	MaxToolIterations int
}

// Config holds dependencies for Runner.
type Config struct {
	Router   provider.Router
	Tools    ToolExecutor
	Profiles map[types.AgentType]Profile
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Invocation is one agent run.
type Invocation struct {
	Agent types.AgentType
	Input string
}

// Result is the outcome of a run. Usage covers every model call made,
// including calls that failed over to another provider.
type Result struct {
	Agent      types.AgentType
	Text       string
	Usage      provider.Usage
	Provider   string
	Model      string
	ToolsUsed  []string
	Iterations int
	Latency    time.Duration
}

// ModelRef returns "provider/model" for pricing.
func (r *Result) ModelRef() string {
	if r.Provider == "" {
		return r.Model
	}
	return r.Provider + "/" + r.Model
}

// Runner executes agents.
type Runner struct {
	router   provider.Router
	tools    ToolExecutor
	profiles map[types.AgentType]Profile
	now      func() time.Time
	log      *slog.Logger
}

// NewRunner creates a Runner. Router and Tools are required.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Router == nil {
		return nil, apperr.New(apperr.CodeAgentRunFailure, "Router is required")
	}
	if cfg.Tools == nil {
		return nil, apperr.New(apperr.CodeAgentRunFailure, "Tools is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		router:   cfg.Router,
		tools:    cfg.Tools,
		profiles: cfg.Profiles,
		now:      cfg.Clock,
		log:      cfg.Logger,
	}, nil
}

// Run executes inv against sc. On failure after at least one model call the
// partial Result is returned with the error so callers can account for the
// tokens already spent. A ToolDisabled error from any tool aborts the run;
// other tool errors are reported to the model as the tool result.
func (r *Runner) Run(ctx context.Context, inv Invocation, sc *session.Context) (*Result, error) {
	start := r.now()
	res := &Result{Agent: inv.Agent}
	defer func() { res.Latency = r.now().Sub(start) }()

	profile := r.profiles[inv.Agent]
	maxIter := profile.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}

	req := provider.ChatRequest{
		SystemPrompt: SystemPrompt(inv.Agent, profile.Instructions, sc, start),
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: inv.Input}},
		Tools:        r.tools.Definitions(inv.Agent, sc),
		Options: provider.ChatOptions{
			MaxTokens:   profile.MaxTokens,
			Temperature: profile.Temperature,
		},
	}

	for {
		t, err := r.call(ctx, sc.TenantID, profile.Model, req, res)
		if err != nil {
			return res, apperr.With(err, apperr.FieldAgentType(inv.Agent), apperr.FieldSessionID(sc.SessionID))
		}
		res.Iterations++
		res.Text = t.text

		if len(t.toolCalls) == 0 {
			return res, nil
		}
		if res.Iterations > maxIter {
			r.log.WarnContext(ctx, "tool loop limit reached",
				slog.String("agent_type", inv.Agent.String()),
				slog.String("session_id", sc.SessionID),
				slog.Int("iterations", res.Iterations),
			)
			if strings.TrimSpace(res.Text) == "" {
				return res, apperr.New(apperr.CodeAgentToolLoopExhausted,
					fmt.Sprintf("no final answer after %d tool iterations", maxIter),
					apperr.FieldAgentType(inv.Agent), apperr.FieldSessionID(sc.SessionID))
			}
			return res, nil
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      provider.MessageRoleAssistant,
			Content:   t.text,
			ToolCalls: t.toolCalls,
		})
		for _, tc := range t.toolCalls {
			content, err := r.dispatch(ctx, inv.Agent, tc, sc)
			if err != nil {
				return res, err
			}
			if !slices.Contains(res.ToolsUsed, tc.Name) {
				res.ToolsUsed = append(res.ToolsUsed, tc.Name)
			}
			req.Messages = append(req.Messages, provider.Message{
				Role:       provider.MessageRoleTool,
				Content:    content,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}
}

// dispatch runs one tool call. Only ToolDisabled is returned as an error;
// anything else becomes an "error: ..." tool result and a disclaimer.
func (r *Runner) dispatch(ctx context.Context, agent types.AgentType, tc provider.ToolCall, sc *session.Context) (string, error) {
	id := tc.ID
	if id == "" {
		id = uuid.NewString()
	}
	out, err := r.tools.Execute(ctx, tools.Call{ID: id, Agent: agent, Name: tc.Name, Arguments: tc.Arguments}, sc)
	if err == nil {
		return out.Content, nil
	}
	if apperr.HasCode(err, apperr.CodeAgentToolDisabled) {
		return "", apperr.With(err, apperr.FieldTool(tc.Name), apperr.FieldAgentType(agent))
	}
	if ctx.Err() != nil {
		return "", apperr.Wrap(ctx.Err(), apperr.CodeAgentRunFailure, "run cancelled during "+tc.Name)
	}

	r.log.WarnContext(ctx, "tool call failed",
		slog.String("tool", tc.Name),
		slog.String("agent_type", agent.String()),
		slog.String("session_id", sc.SessionID),
		slog.String("code", string(apperr.CodeOf(err))),
		slog.Any("error", err),
	)
	sc.Disclaimers.Add(ToolFailureDisclaimer)
	return fmt.Sprintf("error: %s", err.Error()), nil
}

type turn struct {
	text      string
	toolCalls []provider.ToolCall
}

// call routes and streams one model call, failing over to the next
// provider in the chain when the router supports it. Usage from every
// attempt is added to res.
func (r *Runner) call(ctx context.Context, tenantID, modelRef string, req provider.ChatRequest, res *Result) (turn, error) {
	fr, canFailover := r.router.(FailoverRouter)
	attempts := 1
	if canFailover {
		attempts = max(fr.MaxAttempts(), 1)
	}

	var exclude []string
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var (
			p     provider.Provider
			model string
			err   error
		)
		if canFailover {
			p, model, err = fr.RouteExcluding(ctx, tenantID, modelRef, exclude)
		} else {
			p, model, err = r.router.Route(ctx, tenantID, modelRef)
		}
		if err != nil {
			if lastErr != nil {
				break
			}
			return turn{}, apperr.Wrap(err, apperr.CodeAgentRunFailure, "routing model")
		}

		req.Model = model
		t, usage, err := consume(ctx, p, req)
		res.Usage.Add(&usage)
		if err == nil {
			res.Provider = p.Name()
			res.Model = model
			return t, nil
		}

		lastErr = err
		exclude = append(exclude, p.Name())
		if ctx.Err() != nil {
			break
		}
		r.log.WarnContext(ctx, "model call failed",
			slog.String("provider", p.Name()),
			slog.String("model", model),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return turn{}, lastErr
}

// consume drains one chat stream. Text deltas are concatenated and usage
// events merged; an error event fails the call and discards partial text.
func consume(ctx context.Context, p provider.Provider, req provider.ChatRequest) (turn, provider.Usage, error) {
	var usage provider.Usage
	ch, err := p.Chat(ctx, req)
	if err != nil {
		return turn{}, usage, apperr.Wrapf(err, apperr.CodeProviderUpstreamFailure, "chat call to %s", p.Name())
	}

	var (
		buf       strings.Builder
		toolCalls []provider.ToolCall
		streamErr error
	)
	for ev := range ch {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
		case provider.EventTypeToolCall:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, *ev.ToolCall)
			}
		case provider.EventTypeUsage, provider.EventTypeDone:
			usage.Merge(ev.Usage)
		case provider.EventTypeError:
			streamErr = apperr.New(apperr.CodeProviderUpstreamFailure, ev.Error, apperr.FieldProvider(p.Name()))
		}
	}
	if streamErr != nil {
		return turn{}, usage, streamErr
	}
	if err := ctx.Err(); err != nil {
		return turn{}, usage, apperr.Wrap(err, apperr.CodeProviderUpstreamFailure, "chat stream interrupted")
	}
	return turn{text: buf.String(), toolCalls: toolCalls}, usage, nil
}
