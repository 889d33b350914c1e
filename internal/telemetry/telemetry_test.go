// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/store/storetest"
	"github.com/tablewise/aiwaiter/internal/telemetry"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

func TestLogger_Log_PersistsRedactedBoundedSummaries(t *testing.T) {
	mem := storetest.New()
	logger := telemetry.NewLogger(mem, telemetry.WithSummaryMaxChars(40))

	logger.Log(context.Background(), telemetry.Event{
		Kind:      store.EventInvocation,
		Agent:     types.AgentWaiter,
		SessionID: "sess-1",
		TenantID:  "tenant-1",
		Input:     "my email is ana@example.com, what pairs with tilapia and also something sweet?",
		Output:    "Try the lemon sorbet.",
		ToolsUsed: []string{"get_menu", "recommend_items"},
		Latency:   1500 * time.Millisecond,
		CostUSD:   0.0123,
	})

	require.Len(t, mem.Events, 1)
	ev := mem.Events[0]
	assert.Equal(t, store.EventInvocation, ev.Kind)
	assert.Equal(t, types.AgentWaiter, ev.AgentType)
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.NotContains(t, ev.Input, "ana@example.com")
	assert.Contains(t, ev.Input, "[REDACTED:email]")
	assert.LessOrEqual(t, len([]rune(ev.Input)), 40)
	assert.True(t, strings.HasSuffix(ev.Input, "..."))
	assert.Equal(t, "Try the lemon sorbet.", ev.Output)
	assert.Equal(t, []string{"get_menu", "recommend_items"}, ev.ToolsUsed)
	assert.Equal(t, int64(1500), ev.LatencyMS)
	assert.InDelta(t, 0.0123, ev.CostUSD, 1e-9)
}

func TestLogger_Log_NilToolsPersistAsEmpty(t *testing.T) {
	mem := storetest.New()
	telemetry.NewLogger(mem).Log(context.Background(), telemetry.Event{Kind: store.EventFailure, Agent: types.AgentUpsell})

	require.Len(t, mem.Events, 1)
	assert.NotNil(t, mem.Events[0].ToolsUsed)
	assert.Empty(t, mem.Events[0].ToolsUsed)
}

func TestLogger_Record_ReturnsStoreError(t *testing.T) {
	mem := storetest.New()
	mem.ErrAppendEvent = errors.New("disk full")
	logger := telemetry.NewLogger(mem)

	err := logger.Record(context.Background(), telemetry.Event{Kind: store.EventOrderProposal, Agent: types.AgentWaiter})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeStoreDatabaseFailure))
}

func TestLogger_Log_EscalatesAfterConsecutiveFailures(t *testing.T) {
	mem := storetest.New()
	mem.ErrAppendEvent = errors.New("disk full")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := telemetry.NewLogger(mem, telemetry.WithSlog(log))

	for range telemetry.EscalationThreshold {
		logger.Log(context.Background(), telemetry.Event{Kind: store.EventInvocation, Agent: types.AgentUpsell})
	}

	levels := logLevels(t, &buf)
	require.Len(t, levels, telemetry.EscalationThreshold)
	assert.Equal(t, "WARN", levels[0])
	assert.Equal(t, "WARN", levels[telemetry.EscalationThreshold-2])
	assert.Equal(t, "ERROR", levels[telemetry.EscalationThreshold-1])

	// A success resets the streak.
	mem.ErrAppendEvent = nil
	logger.Log(context.Background(), telemetry.Event{Kind: store.EventInvocation, Agent: types.AgentUpsell})
	mem.ErrAppendEvent = errors.New("disk full")
	buf.Reset()
	logger.Log(context.Background(), telemetry.Event{Kind: store.EventInvocation, Agent: types.AgentUpsell})
	assert.Equal(t, []string{"WARN"}, logLevels(t, &buf))
}

func TestMetrics_ObserveInvocationAndCache(t *testing.T) {
	m := telemetry.NewMetrics()
	logger := telemetry.NewLogger(storetest.New(), telemetry.WithMetrics(m))

	logger.Log(context.Background(), telemetry.Event{Kind: store.EventInvocation, Agent: types.AgentWaiter, CostUSD: 0.5})
	logger.Log(context.Background(), telemetry.Event{Kind: store.EventFailure, Agent: types.AgentUpsell})
	logger.Log(context.Background(), telemetry.Event{Kind: store.EventOrderProposal, Agent: types.AgentWaiter})
	m.ObserveDisclaimers(2)
	m.ObserveConfigCache(true)
	m.ObserveConfigCache(false)
	m.ObserveConfigCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations().WithLabelValues("waiter", telemetry.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations().WithLabelValues("upsell", telemetry.StatusError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConfigCache().WithLabelValues("miss")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `aiwaiter_agent_cost_usd_total{agent="waiter"} 0.5`)
	assert.Contains(t, string(body), "aiwaiter_pipeline_disclaimers_total 2")
	assert.Contains(t, string(body), `aiwaiter_runtime_config_cache_total{result="hit"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.ObserveInvocation(types.AgentWaiter, telemetry.StatusOK, time.Second, 1)
		m.ObserveDisclaimers(1)
		m.ObserveConfigCache(true)
	})
}

func logLevels(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var levels []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		levels = append(levels, rec["level"].(string))
	}
	return levels
}
