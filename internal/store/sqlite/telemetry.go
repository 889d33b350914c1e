// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/pkg/types"
)

func (s *Store) AppendEvent(ctx context.Context, event *store.AgentEvent) error {
	const q = `INSERT INTO agent_events (id, kind, agent_type, session_id, tenant_id, location_id, table_session_id,
	input, output, tools_used, latency_ms, cost_usd, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, q,
		event.ID,
		string(event.Kind),
		string(event.AgentType),
		event.SessionID,
		event.TenantID,
		event.LocationID,
		event.TableSessionID,
		event.Input,
		event.Output,
		encodeStrings(event.ToolsUsed),
		event.LatencyMS,
		event.CostUSD,
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending agent event %s: %w", event.ID, err)
	}
	return nil
}

func (s *Store) SpendBetween(ctx context.Context, agentType types.AgentType, tenantID string, from, to time.Time) (float64, error) {
	const q = `SELECT COALESCE(SUM(cost_usd), 0) FROM agent_events
WHERE agent_type = ? AND tenant_id = ? AND created_at >= ? AND created_at < ?`

	var total float64
	err := s.db.QueryRowContext(ctx, q, string(agentType), tenantID, formatTime(from), formatTime(to)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing spend for %s/%s: %w", agentType, tenantScope(tenantID), err)
	}
	return total, nil
}

func (s *Store) CreateSession(ctx context.Context, session *store.AgentSession) (string, error) {
	const q = `INSERT INTO agent_sessions (id, tenant_id, location_id, table_session_id, user_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, q, id, session.TenantID, session.LocationID,
		session.TableSessionID, session.UserID, formatTime(createdAt))
	if err != nil {
		return "", fmt.Errorf("creating agent session: %w", err)
	}
	return id, nil
}

// RecordImpressions inserts all rows in one transaction.
func (s *Store) RecordImpressions(ctx context.Context, impressions []store.Impression) ([]store.Impression, error) {
	const q = `INSERT INTO recommendation_impressions (id, session_id, tenant_id, location_id, item_id, rationale, accepted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if len(impressions) == 0 {
		return []store.Impression{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning impressions tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := make([]store.Impression, 0, len(impressions))
	for _, imp := range impressions {
		if imp.ID == "" {
			imp.ID = uuid.NewString()
		}
		if imp.CreatedAt.IsZero() {
			imp.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, q, imp.ID, imp.SessionID, imp.TenantID, imp.LocationID,
			imp.ItemID, imp.Rationale, boolInt(imp.Accepted), formatTime(imp.CreatedAt)); err != nil {
			return nil, fmt.Errorf("inserting impression for item %s: %w", imp.ItemID, err)
		}
		out = append(out, imp)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing impressions: %w", err)
	}
	return out, nil
}
