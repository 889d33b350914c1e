// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package tools implements the restaurant tools agents may call and the
// dispatcher that enforces per-agent allowlists.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/telemetry"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// Tool names.
const (
	GetMenu        = "get_menu"
	CheckAllergens = "check_allergens"
	RecommendItems = "recommend_items"
	CreateOrder    = "create_order"
	GetKitchenLoad = "get_kitchen_load"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 10 * time.Second

// agentTools is the set of tools each agent is offered before the runtime
// allowlist is applied.
var agentTools = map[types.AgentType][]string{
	types.AgentUpsell:           {GetMenu, CheckAllergens, RecommendItems},
	types.AgentAllergenGuardian: {GetMenu, CheckAllergens},
	types.AgentWaiter:           {GetMenu, CheckAllergens, RecommendItems, CreateOrder, GetKitchenLoad},
}

// Call is one tool invocation requested by an agent. Agent travels with the
// call so the dispatcher never consults shared state for it.
type Call struct {
	ID        string
	Agent     types.AgentType
	Name      string
	Arguments string // JSON
}

// Result holds a tool's JSON output.
type Result struct {
	Content string
}

// Tool is a single callable capability.
type Tool interface {
	Definition() provider.ToolDefinition
	Run(ctx context.Context, call Call, sc *session.Context) (any, error)
}

// Registry is a thread-safe set of tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition().Name] = t
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProposalRecorder persists order proposals. telemetry.Logger satisfies it.
type ProposalRecorder interface {
	Record(ctx context.Context, ev telemetry.Event) error
}

// Config holds dependencies for Dispatcher.
type Config struct {
	Orders         store.OrderStore
	Proposals      ProposalRecorder
	DefaultTimeout time.Duration
	Clock          func() time.Time
	Logger         *slog.Logger
}

// Dispatcher runs tool calls with allowlist checks and timeouts.
type Dispatcher struct {
	registry       *Registry
	defaultTimeout time.Duration
	log            *slog.Logger
}

// NewDispatcher creates a Dispatcher with the built-in tools registered.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Orders == nil {
		return nil, apperr.New(apperr.CodeAgentToolInvalidInput, "Orders is required")
	}
	if cfg.Proposals == nil {
		return nil, apperr.New(apperr.CodeAgentToolInvalidInput, "Proposals is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}

	reg := NewRegistry()
	reg.Register(getMenuTool{})
	reg.Register(checkAllergensTool{})
	reg.Register(recommendItemsTool{})
	reg.Register(&createOrderTool{recorder: cfg.Proposals})
	reg.Register(&kitchenLoadTool{orders: cfg.Orders, now: cfg.Clock})

	return &Dispatcher{
		registry:       reg,
		defaultTimeout: cfg.DefaultTimeout,
		log:            cfg.Logger,
	}, nil
}

// Registry exposes the dispatcher's tools.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Permitted reports whether agent may call name under the overrides in sc.
func Permitted(agent types.AgentType, name string, sc *session.Context) bool {
	if !slices.Contains(agentTools[agent], name) {
		return false
	}
	o, ok := sc.OverrideFor(agent)
	if !ok {
		return true
	}
	if name == CreateOrder && o.AutonomyLevel == types.AutonomyL0 {
		return false
	}
	return o.Allows(name)
}

// Definitions returns the definitions of the tools agent may call, in the
// agent's tool order.
func (d *Dispatcher) Definitions(agent types.AgentType, sc *session.Context) []provider.ToolDefinition {
	var defs []provider.ToolDefinition
	for _, name := range agentTools[agent] {
		if !Permitted(agent, name, sc) {
			continue
		}
		if t, ok := d.registry.Lookup(name); ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

// Execute runs call against sc. A tool outside the agent's allowlist yields
// agent.tool.disabled; malformed arguments yield agent.tool.invalid_input.
func (d *Dispatcher) Execute(ctx context.Context, call Call, sc *session.Context) (*Result, error) {
	t, ok := d.registry.Lookup(call.Name)
	if !ok {
		return nil, apperr.New(apperr.CodeAgentToolInvalidInput,
			fmt.Sprintf("unknown tool %s; available: %s", call.Name, strings.Join(d.registry.Names(), ", ")),
			apperr.FieldTool(call.Name), apperr.FieldAgentType(call.Agent))
	}
	if !Permitted(call.Agent, call.Name, sc) {
		d.log.WarnContext(ctx, "tool call denied",
			slog.String("tool", call.Name),
			slog.String("agent_type", call.Agent.String()),
			slog.String("session_id", sc.SessionID),
		)
		return nil, apperr.Errorf(apperr.CodeAgentToolDisabled, "tool %s is not enabled for %s", call.Name, call.Agent)
	}

	execCtx := ctx
	if d.defaultTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.defaultTimeout)
		defer cancel()
	}

	out, err := t.Run(execCtx, call, sc)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Wrapf(err, apperr.CodeAgentToolTimeout, "tool %q execution timeout", call.Name)
		}
		if apperr.CodeOf(err) != "" {
			return nil, err
		}
		return nil, apperr.Wrapf(err, apperr.CodeAgentToolFailure, "executing tool %q", call.Name)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeAgentToolFailure, "encoding %q result", call.Name)
	}
	return &Result{Content: string(raw)}, nil
}

// decodeArgs unmarshals call arguments into dst. Empty arguments decode as
// an empty object.
func decodeArgs(call Call, dst any) error {
	raw := call.Arguments
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return apperr.Wrap(err, apperr.CodeAgentToolInvalidInput, "invalid arguments for "+call.Name,
			apperr.FieldTool(call.Name))
	}
	return nil
}

func invalidInput(call Call, format string, args ...any) error {
	return apperr.New(apperr.CodeAgentToolInvalidInput, call.Name+": "+fmt.Sprintf(format, args...),
		apperr.FieldTool(call.Name))
}
