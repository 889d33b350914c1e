// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package budget_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/budget"
	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/store/storetest"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

var now = time.Date(2026, 5, 1, 15, 30, 0, 0, time.UTC)

func TestPriceLookup(t *testing.T) {
	table := budget.NewPriceTable(map[string]budget.Price{
		"openai/gpt-house": {InputPerMillion: 1, OutputPerMillion: 2},
	})

	tests := []struct {
		model string
		want  budget.Price
	}{
		{model: "gpt-4o", want: budget.Price{InputPerMillion: 2.5, OutputPerMillion: 10}},
		{model: "openai/gpt-4o-mini-2024-07-18", want: budget.Price{InputPerMillion: 0.15, OutputPerMillion: 0.6}},
		{model: "anthropic/claude-sonnet-4-5-20250929", want: budget.Price{InputPerMillion: 3, OutputPerMillion: 15}},
		{model: "gpt-house", want: budget.Price{InputPerMillion: 1, OutputPerMillion: 2}},
		{model: "mystery-model", want: budget.DefaultPrice},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Lookup(tt.model))
		})
	}
}

func TestEstimateCostUSD(t *testing.T) {
	table := budget.NewPriceTable(nil)

	assert.Zero(t, table.EstimateCostUSD("gpt-4o", nil))

	cost := table.EstimateCostUSD("gpt-4o", &provider.Usage{InputTokens: 1000, OutputTokens: 500})
	assert.InDelta(t, 0.0075, cost, 1e-12)

	// 7 input tokens of the default tier: 0.000105, already six decimals.
	cost = table.EstimateCostUSD("unknown", &provider.Usage{InputTokens: 7, OutputTokens: 1})
	assert.InDelta(t, 0.00018, cost, 1e-12)

	assert.Equal(t, 0.000001, budget.Round6(0.0000014))
}

func TestDayWindow(t *testing.T) {
	from, to := budget.DayWindow(time.Date(2026, 5, 1, 23, 59, 0, 0, time.FixedZone("X", 3*3600)))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), to)
}

func newEnforcer(t *testing.T, spentToday float64) (*budget.Enforcer, *storetest.Memory) {
	t.Helper()
	mem := storetest.New()
	if spentToday > 0 {
		require.NoError(t, mem.AppendEvent(context.Background(), &store.AgentEvent{
			Kind: store.EventInvocation, AgentType: types.AgentWaiter, TenantID: "t1",
			CostUSD: spentToday, CreatedAt: now.Add(-time.Hour),
		}))
	}
	return budget.NewEnforcer(mem, budget.WithClock(func() time.Time { return now })), mem
}

func TestAssertAfterRun(t *testing.T) {
	tests := []struct {
		name   string
		spent  float64
		limits budget.Limits
		cost   float64
		code   apperr.Code
	}{
		{name: "no limits", limits: budget.Limits{}, cost: 100},
		{name: "under session", limits: budget.Limits{SessionUSD: 0.5}, cost: 0.5},
		{name: "over session", limits: budget.Limits{SessionUSD: 0.5}, cost: 0.500001, code: apperr.CodeAgentSessionBudgetExceeded},
		{name: "daily at ceiling passes", spent: 9, limits: budget.Limits{DailyUSD: 10}, cost: 1},
		{name: "daily over", spent: 9, limits: budget.Limits{DailyUSD: 10}, cost: 1.01, code: apperr.CodeAgentDailyBudgetExceeded},
		{name: "session checked first", spent: 9, limits: budget.Limits{SessionUSD: 1, DailyUSD: 10}, cost: 2, code: apperr.CodeAgentSessionBudgetExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEnforcer(t, tt.spent)
			err := e.AssertAfterRun(context.Background(), types.AgentWaiter, "t1", tt.limits, tt.cost)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.True(t, apperr.IsBudgetExceeded(err))
			assert.Contains(t, err.Error(), "budget")
		})
	}
}

func TestAssertAfterRunIsMonotonic(t *testing.T) {
	e, _ := newEnforcer(t, 4)
	limits := budget.Limits{SessionUSD: 3, DailyUSD: 7}

	for _, c1 := range []float64{0.1, 1, 2.5, 3} {
		if err := e.AssertAfterRun(context.Background(), types.AgentWaiter, "t1", limits, c1); err != nil {
			continue
		}
		for _, c2 := range []float64{0, c1 / 2, c1 - 0.000001} {
			assert.NoError(t, e.AssertAfterRun(context.Background(), types.AgentWaiter, "t1", limits, c2),
				"passing at %v must imply passing at %v", c1, c2)
		}
	}
}

func TestAssertAfterRunSpendFailure(t *testing.T) {
	e, mem := newEnforcer(t, 0)
	mem.ErrSpend = errors.New("db down")

	err := e.AssertAfterRun(context.Background(), types.AgentWaiter, "t1", budget.Limits{DailyUSD: 1}, 0.1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStoreDatabaseFailure, apperr.CodeOf(err))
}
