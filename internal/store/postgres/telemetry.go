// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/pkg/types"
)

func (s *Store) AppendEvent(ctx context.Context, event *store.AgentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_events (id, kind, agent_type, session_id, tenant_id, location_id, table_session_id,
			input, output, tools_used, latency_ms, cost_usd, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		event.ID,
		string(event.Kind),
		string(event.AgentType),
		nullableString(event.SessionID),
		nullableString(event.TenantID),
		nullableString(event.LocationID),
		nullableString(event.TableSessionID),
		event.Input,
		event.Output,
		stringArray(event.ToolsUsed),
		event.LatencyMS,
		event.CostUSD,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending agent event %s: %w", event.ID, err)
	}
	return nil
}

func (s *Store) SpendBetween(ctx context.Context, agentType types.AgentType, tenantID string, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0) FROM agent_events
		WHERE agent_type = $1 AND tenant_id IS NOT DISTINCT FROM $2
			AND created_at >= $3 AND created_at < $4
	`, string(agentType), nullableString(tenantID), from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing spend for %s/%s: %w", agentType, tenantScope(tenantID), err)
	}
	return total, nil
}

func (s *Store) CreateSession(ctx context.Context, session *store.AgentSession) (string, error) {
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var out string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO agent_sessions (id, tenant_id, location_id, table_session_id, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`,
		id,
		nullableString(session.TenantID),
		nullableString(session.LocationID),
		nullableString(session.TableSessionID),
		nullableString(session.UserID),
		createdAt,
	).Scan(&out)
	if err != nil {
		return "", fmt.Errorf("creating agent session: %w", err)
	}
	return out, nil
}

func (s *Store) RecordImpressions(ctx context.Context, impressions []store.Impression) ([]store.Impression, error) {
	if len(impressions) == 0 {
		return []store.Impression{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning impressions tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	out := make([]store.Impression, 0, len(impressions))
	for _, imp := range impressions {
		if imp.ID == "" {
			imp.ID = uuid.NewString()
		}
		if imp.CreatedAt.IsZero() {
			imp.CreatedAt = now
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO recommendation_impressions (id, session_id, tenant_id, location_id, item_id, rationale, accepted, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`,
			imp.ID,
			nullableString(imp.SessionID),
			nullableString(imp.TenantID),
			nullableString(imp.LocationID),
			imp.ItemID,
			imp.Rationale,
			imp.Accepted,
			imp.CreatedAt,
		).Scan(&imp.ID); err != nil {
			return nil, fmt.Errorf("inserting impression for item %s: %w", imp.ItemID, err)
		}
		out = append(out, imp)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing impressions: %w", err)
	}
	return out, nil
}
