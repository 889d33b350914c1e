// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package telemetry persists the agent audit trail and exposes service
// metrics.
package telemetry

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/tablewise/aiwaiter/internal/redact"
	"github.com/tablewise/aiwaiter/internal/store"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// DefaultSummaryMaxChars bounds persisted input and output summaries.
const DefaultSummaryMaxChars = 500

// EventAppender is the write side of the telemetry store.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.AgentEvent) error
}

// Event is one audit record before redaction.
type Event struct {
	Kind           store.EventKind
	Agent          types.AgentType
	SessionID      string
	TenantID       string
	LocationID     string
	TableSessionID string
	Input          string
	Output         string
	ToolsUsed      []string
	Latency        time.Duration
	CostUSD        float64
}

// Logger writes agent_events rows.
type Logger struct {
	events   EventAppender
	redactor *redact.Redactor
	metrics  *Metrics
	log      *slog.Logger
	maxChars int

	failCount atomic.Int64
	failTotal atomic.Int64
}

// Option configures a Logger.
type Option func(*Logger)

func WithRedactor(r *redact.Redactor) Option {
	return func(l *Logger) { l.redactor = r }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

func WithSlog(log *slog.Logger) Option {
	return func(l *Logger) { l.log = log }
}

// WithSummaryMaxChars sets the rune limit for summaries. Non-positive values
// keep the default.
func WithSummaryMaxChars(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.maxChars = n
		}
	}
}

// NewLogger returns a Logger that appends to events.
func NewLogger(events EventAppender, opts ...Option) *Logger {
	l := &Logger{
		events:   events,
		redactor: redact.New(),
		log:      slog.Default(),
		maxChars: DefaultSummaryMaxChars,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Metrics returns the attached metrics, which may be nil.
func (l *Logger) Metrics() *Metrics {
	return l.metrics
}

// Log persists ev on a best-effort basis. Failures are logged and never
// returned.
func (l *Logger) Log(ctx context.Context, ev Event) {
	if err := l.Record(ctx, ev); err != nil {
		consecutive := l.failCount.Add(1)
		total := l.failTotal.Add(1)
		attrs := []slog.Attr{
			slog.Any("error", err),
			slog.String("kind", string(ev.Kind)),
			slog.String("agent_type", ev.Agent.String()),
			slog.String("session_id", ev.SessionID),
			slog.Int64("consecutive_failures", consecutive),
		}
		if consecutive >= EscalationThreshold {
			attrs = append(attrs, slog.Int64("total_failures", total))
		}
		LogEscalating(ctx, l.log, consecutive, "telemetry append failed", attrs...)
		return
	}
	l.failCount.Store(0)
}

// Record persists ev and returns the store error. Invocation and failure
// events are counted in metrics whether or not the write succeeds.
func (l *Logger) Record(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case store.EventInvocation:
		l.metrics.ObserveInvocation(ev.Agent, StatusOK, ev.Latency, ev.CostUSD)
	case store.EventFailure:
		l.metrics.ObserveInvocation(ev.Agent, StatusError, ev.Latency, ev.CostUSD)
	}

	if l.events == nil {
		return nil
	}
	row := &store.AgentEvent{
		Kind:           ev.Kind,
		AgentType:      ev.Agent,
		SessionID:      ev.SessionID,
		TenantID:       ev.TenantID,
		LocationID:     ev.LocationID,
		TableSessionID: ev.TableSessionID,
		Input:          l.Summarize(ev.Input),
		Output:         l.Summarize(ev.Output),
		ToolsUsed:      slices.Clone(ev.ToolsUsed),
		LatencyMS:      ev.Latency.Milliseconds(),
		CostUSD:        ev.CostUSD,
	}
	if row.ToolsUsed == nil {
		row.ToolsUsed = []string{}
	}
	if err := l.events.AppendEvent(ctx, row); err != nil {
		return apperr.Wrap(err, apperr.CodeStoreDatabaseFailure, "appending agent event",
			apperr.FieldAgentType(ev.Agent),
			apperr.FieldSessionID(ev.SessionID),
		)
	}
	return nil
}

// Summarize redacts s and bounds it to the configured length.
func (l *Logger) Summarize(s string) string {
	return redact.Truncate(l.redactor.Redact(s), l.maxChars)
}
