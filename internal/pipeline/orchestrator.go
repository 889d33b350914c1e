// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package pipeline runs one diner message through the upsell, allergen
// guardian and waiter agents and assembles the guest response.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tablewise/aiwaiter/internal/agent"
	"github.com/tablewise/aiwaiter/internal/budget"
	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/runtimecfg"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/telemetry"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// Guest-facing disclaimers added by the pipeline itself.
const (
	UpsellUnavailableDisclaimer = "Upsell suggestions are temporarily unavailable right now."
	BypassedSafetyDisclaimer    = "Some model suggestions were removed because they bypassed safety checks."
)

// ContextBuilder assembles the per-request session context.
type ContextBuilder interface {
	Build(ctx context.Context, in session.BuildInput) (*session.Context, error)
}

// ConfigResolver gates each agent on its runtime config.
type ConfigResolver interface {
	EnsureAgentEnabled(ctx context.Context, agentType types.AgentType, tenantID string) (runtimecfg.Config, error)
}

// AgentRunner executes one agent.
type AgentRunner interface {
	Run(ctx context.Context, inv agent.Invocation, sc *session.Context) (*agent.Result, error)
}

// BudgetEnforcer checks spend ceilings after a run.
type BudgetEnforcer interface {
	AssertAfterRun(ctx context.Context, agentType types.AgentType, tenantID string, limits budget.Limits, costUSD float64) error
}

// CostEstimator prices token usage.
type CostEstimator interface {
	EstimateCostUSD(model string, usage *provider.Usage) float64
}

// SessionStore records sessions and impressions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *store.AgentSession) (string, error)
	RecordImpressions(ctx context.Context, impressions []store.Impression) ([]store.Impression, error)
}

// EventLogger writes best-effort audit events.
type EventLogger interface {
	Log(ctx context.Context, ev telemetry.Event)
}

// Hooks observe the state machine. Used by tests.
type Hooks struct {
	OnTransition func(from, to types.Stage)
}

// Deps holds the orchestrator's collaborators. Metrics, Clock, Logger and
// Hooks are optional.
type Deps struct {
	Contexts ContextBuilder
	Configs  ConfigResolver
	Runner   AgentRunner
	Budget   BudgetEnforcer
	Prices   CostEstimator
	Sessions SessionStore
	Events   EventLogger
	Metrics  *telemetry.Metrics
	Clock    func() time.Time
	Logger   *slog.Logger
	Hooks    *Hooks
}

// Request is one diner message with its table context.
type Request struct {
	Message        string
	SessionID      string
	TenantID       string
	LocationID     string
	TableSessionID string
	UserID         string
	Language       string
	Allergies      []string
	Cart           []menu.CartLine
	AgeVerified    bool
}

// Response is the sanitized answer returned to the guest.
type Response struct {
	SessionID   string            `json:"session_id"`
	Reply       string            `json:"reply"`
	Upsell      []menu.Suggestion `json:"upsell"`
	Disclaimers []string          `json:"disclaimers"`
	Citations   []string          `json:"citations"`
	CostUSD     float64           `json:"cost_usd"`
}

// Orchestrator runs the agent pipeline. It is safe for concurrent use; all
// per-request state lives in a run.
type Orchestrator struct {
	contexts ContextBuilder
	configs  ConfigResolver
	runner   AgentRunner
	budget   BudgetEnforcer
	prices   CostEstimator
	sessions SessionStore
	events   EventLogger
	metrics  *telemetry.Metrics
	now      func() time.Time
	log      *slog.Logger
	hooks    *Hooks
}

// New creates an Orchestrator.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Contexts == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Contexts is required")
	case d.Configs == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Configs is required")
	case d.Runner == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Runner is required")
	case d.Budget == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Budget is required")
	case d.Prices == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Prices is required")
	case d.Sessions == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Sessions is required")
	case d.Events == nil:
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "Events is required")
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{
		contexts: d.Contexts,
		configs:  d.Configs,
		runner:   d.Runner,
		budget:   d.Budget,
		prices:   d.Prices,
		sessions: d.Sessions,
		events:   d.Events,
		metrics:  d.Metrics,
		now:      d.Clock,
		log:      d.Logger,
		hooks:    d.Hooks,
	}, nil
}

// Handle runs req through the pipeline. Upsell failures are recovered into
// a disclaimer; failures from the guardian stage onward fail the request.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.New(apperr.CodeServerRequestInvalid, "message is required")
	}

	sc, err := o.contexts.Build(ctx, session.BuildInput{
		TenantID:       req.TenantID,
		LocationID:     req.LocationID,
		TableSessionID: req.TableSessionID,
		UserID:         req.UserID,
		Language:       req.Language,
		Allergies:      req.Allergies,
		Cart:           req.Cart,
		AgeVerified:    req.AgeVerified,
	})
	if err != nil {
		return nil, err
	}

	sc.SessionID = req.SessionID
	if sc.SessionID == "" {
		id, err := o.sessions.CreateSession(ctx, &store.AgentSession{
			TenantID:       sc.TenantID,
			LocationID:     sc.LocationID,
			TableSessionID: sc.TableSessionID,
			UserID:         sc.UserID,
			CreatedAt:      o.now().UTC(),
		})
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodePipelineSessionFailure, "creating agent session",
				apperr.FieldTenantID(sc.TenantID), apperr.FieldLocationID(sc.LocationID))
		}
		sc.SessionID = id
	}

	r := &run{o: o, sc: sc, message: req.Message}
	stage := types.StageUpsell
	for !stage.Terminal() {
		next, err := r.step(ctx, stage)
		if err != nil {
			return nil, apperr.With(err, apperr.FieldSessionID(sc.SessionID), apperr.Field("stage", string(stage)))
		}
		o.transition(ctx, sc, stage, next)
		stage = next
	}

	resp := r.response()
	o.metrics.ObserveDisclaimers(r.sc.Disclaimers.Len())
	return resp, nil
}

func (o *Orchestrator) transition(ctx context.Context, sc *session.Context, from, to types.Stage) {
	o.log.DebugContext(ctx, "pipeline transition",
		slog.String("session_id", sc.SessionID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	if o.hooks != nil && o.hooks.OnTransition != nil {
		o.hooks.OnTransition(from, to)
	}
}

// run is the state of one request.
type run struct {
	o       *Orchestrator
	sc      *session.Context
	message string

	upsellErr error
	waiter    WaiterOutput
	selected  []menu.Suggestion
	citations []string
	totalCost float64
}

// step executes stage and returns the next one.
func (r *run) step(ctx context.Context, stage types.Stage) (types.Stage, error) {
	switch stage {
	case types.StageUpsell:
		if err := r.upsell(ctx); err != nil {
			r.upsellErr = err
			return types.StageUpsellFailed, nil
		}
		if len(r.sc.Suggestions) > 0 {
			return types.StageGuardian, nil
		}
		return types.StageImpressions, nil
	case types.StageUpsellFailed:
		r.recoverUpsell(ctx)
		return types.StageImpressions, nil
	case types.StageGuardian:
		return types.StageImpressions, r.guardian(ctx)
	case types.StageImpressions:
		return types.StageWaiter, r.impressions(ctx)
	case types.StageWaiter:
		return types.StageDone, r.waiterStage(ctx)
	default:
		return stage, apperr.Errorf(apperr.CodeServerInternalFailure, "no transition from stage %q", stage)
	}
}

// invoke gates agentType on its runtime config, applies the override and
// runs it. The returned cost covers whatever the run consumed, even when it
// failed.
func (r *run) invoke(ctx context.Context, agentType types.AgentType, input string) (*agent.Result, runtimecfg.Config, float64, error) {
	cfg, err := r.o.configs.EnsureAgentEnabled(ctx, agentType, r.sc.TenantID)
	if err != nil {
		return nil, cfg, 0, err
	}
	runtimecfg.Apply(r.sc, agentType, cfg, r.o.now())

	res, err := r.o.runner.Run(ctx, agent.Invocation{Agent: agentType, Input: input}, r.sc)
	var cost float64
	if res != nil {
		cost = r.o.prices.EstimateCostUSD(res.ModelRef(), &res.Usage)
		r.totalCost += cost
	}
	return res, cfg, cost, err
}

func (r *run) upsell(ctx context.Context) error {
	res, cfg, cost, err := r.invoke(ctx, types.AgentUpsell, r.message)
	if err != nil {
		r.logFailure(ctx, types.AgentUpsell, r.message, res, cost, err)
		return err
	}

	out, perr := ParseUpsell(res.Text)
	if perr != nil {
		r.o.log.WarnContext(ctx, "upsell output unusable",
			slog.String("session_id", r.sc.SessionID),
			slog.String("code", string(apperr.CodeOf(perr))),
		)
	}
	r.sc.Suggestions = r.canonicalize(out.Suggestions)

	if err := r.o.budget.AssertAfterRun(ctx, types.AgentUpsell, r.sc.TenantID, cfg.Limits(), cost); err != nil {
		r.logFailure(ctx, types.AgentUpsell, r.message, res, cost, err)
		return err
	}

	r.o.events.Log(ctx, r.event(store.EventInvocation, types.AgentUpsell, res, cost, r.message, suggestionSummary(r.sc.Suggestions)))
	return nil
}

// canonicalize maps raw picks onto menu items, dropping unknown,
// ineligible and repeated ids, and keeps at most three.
func (r *run) canonicalize(picks []UpsellPick) []menu.Suggestion {
	policy := r.sc.Policy()
	out := make([]menu.Suggestion, 0, len(picks))
	seen := make(map[string]struct{}, len(picks))
	for _, p := range picks {
		if len(out) == menu.MaxRecommendLimit {
			break
		}
		id := strings.TrimPrefix(strings.TrimSpace(p.ItemID), menu.CitationPrefix)
		if _, dup := seen[id]; dup {
			continue
		}
		it, ok := r.sc.Item(id)
		if !ok || !menu.Eligible(it, policy) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, menu.ToSuggestion(it, p.Rationale))
	}
	return out
}

// recoverUpsell converts the upsell failure into a disclaimer and clears
// the suggestions. The failure event was logged where it happened.
func (r *run) recoverUpsell(ctx context.Context) {
	r.o.log.WarnContext(ctx, "upsell stage failed",
		slog.String("session_id", r.sc.SessionID),
		slog.String("code", string(apperr.CodeOf(r.upsellErr))),
		slog.Any("error", r.upsellErr),
	)
	r.sc.Disclaimers.Add(UpsellUnavailableDisclaimer)
	r.sc.Suggestions = []menu.Suggestion{}
}

// guardian audits the suggestions it was sent, captured before filtering.
func (r *run) guardian(ctx context.Context) error {
	sent := suggestionSummary(r.sc.Suggestions)
	input, err := json.Marshal(r.sc.Suggestions)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeServerInternalFailure, "encoding suggestions for guardian")
	}
	res, cfg, cost, err := r.invoke(ctx, types.AgentAllergenGuardian, string(input))
	if err != nil {
		r.logFailure(ctx, types.AgentAllergenGuardian, sent, res, cost, err)
		return err
	}

	out, err := ParseGuardian(res.Text)
	if err != nil {
		r.logFailure(ctx, types.AgentAllergenGuardian, sent, res, cost, err)
		return err
	}

	ids := BlockedIDs(r.sc.Suggestions, out.Blocked)
	explained := make(map[string]struct{}, len(ids))
	for _, b := range out.Blocked {
		id := strings.TrimPrefix(strings.TrimSpace(b.ItemID), menu.CitationPrefix)
		if _, done := explained[id]; done || !contains(ids, id) {
			continue
		}
		explained[id] = struct{}{}
		name := id
		if it, ok := r.sc.Item(id); ok {
			name = it.Name
		}
		r.sc.Disclaimers.Add(BlockedDisclaimer(name, b))
	}

	filtered := Filter(r.sc.Suggestions, ids)
	if len(filtered) == 0 {
		r.sc.Disclaimers.Add(AllRemovedDisclaimer)
	}
	r.sc.Suggestions = filtered

	if err := r.o.budget.AssertAfterRun(ctx, types.AgentAllergenGuardian, r.sc.TenantID, cfg.Limits(), cost); err != nil {
		r.logFailure(ctx, types.AgentAllergenGuardian, sent, res, cost, err)
		return err
	}

	summary := "blocked: none"
	if len(ids) > 0 {
		summary = "blocked: " + strings.Join(ids, ", ")
	}
	r.o.events.Log(ctx, r.event(store.EventInvocation, types.AgentAllergenGuardian, res, cost, sent, summary))
	return nil
}

func (r *run) impressions(ctx context.Context) error {
	if len(r.sc.Suggestions) == 0 {
		return nil
	}
	rows := ImpressionRows(r.sc, r.sc.Suggestions)
	now := r.o.now().UTC()
	for i := range rows {
		rows[i].CreatedAt = now
	}
	recorded, err := r.o.sessions.RecordImpressions(ctx, rows)
	if err != nil {
		return apperr.Wrap(err, apperr.CodePipelineImpressionFailure, "recording impressions",
			apperr.FieldSessionID(r.sc.SessionID))
	}
	r.sc.Suggestions = AttachImpressions(r.sc.Suggestions, recorded)
	return nil
}

func (r *run) waiterStage(ctx context.Context) error {
	res, cfg, cost, err := r.invoke(ctx, types.AgentWaiter, r.message)
	if err != nil {
		r.logFailure(ctx, types.AgentWaiter, r.message, res, cost, err)
		return err
	}

	out, err := ParseWaiter(res.Text)
	if err != nil {
		r.logFailure(ctx, types.AgentWaiter, r.message, res, cost, err)
		return err
	}

	if err := r.o.budget.AssertAfterRun(ctx, types.AgentWaiter, r.sc.TenantID, cfg.Limits(), cost); err != nil {
		r.logFailure(ctx, types.AgentWaiter, r.message, res, cost, err)
		return err
	}
	r.o.events.Log(ctx, r.event(store.EventInvocation, types.AgentWaiter, res, cost, r.message, out.Reply))

	r.waiter = out
	r.selected = r.selectUpsell(out.Upsell)
	r.sc.Disclaimers.Add(out.Disclaimers...)
	r.citations = SanitizeCitations(out.Citations, &r.sc.Disclaimers)
	return nil
}

// selectUpsell keeps the waiter's picks that survived filtering. Any other
// pick is dropped with BypassedSafetyDisclaimer. Without surviving picks the
// filtered suggestions are returned as they are.
func (r *run) selectUpsell(picks []WaiterPick) []menu.Suggestion {
	byID := make(map[string]menu.Suggestion, len(r.sc.Suggestions))
	for _, s := range r.sc.Suggestions {
		if _, ok := byID[s.ItemID]; !ok {
			byID[s.ItemID] = s
		}
	}

	var selected []menu.Suggestion
	seen := make(map[string]struct{}, len(picks))
	for _, p := range picks {
		id := strings.TrimPrefix(strings.TrimSpace(p.ItemID), menu.CitationPrefix)
		s, ok := byID[id]
		if !ok {
			r.sc.Disclaimers.Add(BypassedSafetyDisclaimer)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, s)
	}
	if len(selected) == 0 {
		return append([]menu.Suggestion{}, r.sc.Suggestions...)
	}
	return selected
}

func (r *run) response() *Response {
	return &Response{
		SessionID:   r.sc.SessionID,
		Reply:       r.waiter.Reply,
		Upsell:      r.selected,
		Disclaimers: r.sc.Disclaimers.List(),
		Citations:   r.citations,
		CostUSD:     budget.Round6(r.totalCost),
	}
}

func (r *run) event(kind store.EventKind, agentType types.AgentType, res *agent.Result, cost float64, input, output string) telemetry.Event {
	ev := telemetry.Event{
		Kind:           kind,
		Agent:          agentType,
		SessionID:      r.sc.SessionID,
		TenantID:       r.sc.TenantID,
		LocationID:     r.sc.LocationID,
		TableSessionID: r.sc.TableSessionID,
		Input:          input,
		Output:         output,
		CostUSD:        cost,
	}
	if res != nil {
		ev.ToolsUsed = res.ToolsUsed
		ev.Latency = res.Latency
	}
	return ev
}

func (r *run) logFailure(ctx context.Context, agentType types.AgentType, input string, res *agent.Result, cost float64, err error) {
	out := "error: " + string(apperr.CodeOf(err))
	r.o.events.Log(ctx, r.event(store.EventFailure, agentType, res, cost, input, out))
}

func suggestionSummary(s []menu.Suggestion) string {
	if len(s) == 0 {
		return "suggested: none"
	}
	names := make([]string, len(s))
	for i, sug := range s {
		names[i] = sug.Name
	}
	return "suggested: " + strings.Join(names, ", ")
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
