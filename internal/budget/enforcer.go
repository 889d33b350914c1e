// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/tablewise/aiwaiter/internal/store"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// Limits are the spend ceilings of one agent for one tenant. Zero disables
// a ceiling.
type Limits struct {
	SessionUSD float64
	DailyUSD   float64
}

// DayWindow returns the UTC calendar day containing now as [start, end).
func DayWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// SpentToday sums today's recorded cost for agent and tenant.
func SpentToday(ctx context.Context, r store.SpendReader, agent types.AgentType, tenantID string, now time.Time) (float64, error) {
	from, to := DayWindow(now)
	spent, err := r.SpendBetween(ctx, agent, tenantID, from, to)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeStoreDatabaseFailure, "reading daily spend",
			apperr.FieldAgentType(agent), apperr.FieldTenantID(tenantID))
	}
	return spent, nil
}

// DailyExceeded builds the error returned when the daily ceiling is hit.
func DailyExceeded(agent types.AgentType, tenantID string, spent, limit float64) error {
	return apperr.New(apperr.CodeAgentDailyBudgetExceeded,
		fmt.Sprintf("daily budget of $%.2f exceeded for agent %s (spent $%.6f)", limit, agent, spent),
		apperr.FieldAgentType(agent), apperr.FieldTenantID(tenantID))
}

// Enforcer checks spend after each agent run.
type Enforcer struct {
	spend store.SpendReader
	now   func() time.Time
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// NewEnforcer creates an Enforcer reading spend from r.
func NewEnforcer(r store.SpendReader, opts ...Option) *Enforcer {
	e := &Enforcer{spend: r, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssertAfterRun fails when cost alone exceeds the session ceiling, or when
// today's recorded spend plus cost exceeds the daily ceiling. The run's own
// event must not be recorded yet.
func (e *Enforcer) AssertAfterRun(ctx context.Context, agent types.AgentType, tenantID string, limits Limits, costUSD float64) error {
	if limits.SessionUSD > 0 && costUSD > limits.SessionUSD {
		return apperr.New(apperr.CodeAgentSessionBudgetExceeded,
			fmt.Sprintf("session budget of $%.2f exceeded for agent %s (cost $%.6f)", limits.SessionUSD, agent, costUSD),
			apperr.FieldAgentType(agent), apperr.FieldTenantID(tenantID))
	}
	if limits.DailyUSD <= 0 {
		return nil
	}
	spent, err := SpentToday(ctx, e.spend, agent, tenantID, e.now())
	if err != nil {
		return err
	}
	if spent+costUSD > limits.DailyUSD {
		return DailyExceeded(agent, tenantID, spent+costUSD, limits.DailyUSD)
	}
	return nil
}
