// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// GetRuntimeConfig returns the row for exactly (agentType, tenantID). It does
// not fall back to the global row.
func (s *Store) GetRuntimeConfig(ctx context.Context, agentType types.AgentType, tenantID string) (*store.RuntimeConfig, error) {
	const q = `SELECT agent_type, tenant_id, enabled, session_budget_usd, daily_budget_usd, instructions,
	tool_allowlist, autonomy_level, retrieval_ttl_minutes, experiment_flag, sync_pending, updated_at
FROM agent_runtime_configs WHERE agent_type = ? AND tenant_id = ?`

	var (
		rc        store.RuntimeConfig
		agent     string
		allowlist sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, q, string(agentType), tenantID).Scan(
		&agent,
		&rc.TenantID,
		&rc.Enabled,
		&rc.SessionBudgetUSD,
		&rc.DailyBudgetUSD,
		&rc.Instructions,
		&allowlist,
		&rc.AutonomyLevel,
		&rc.RetrievalTTLMinutes,
		&rc.ExperimentFlag,
		&rc.SyncPending,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("runtime config %s/%s: %w", agentType, tenantScope(tenantID), store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting runtime config %s/%s: %w", agentType, tenantScope(tenantID), err)
	}
	rc.AgentType = types.AgentType(agent)
	rc.ToolAllowlist = decodeStrings(allowlist)
	rc.UpdatedAt = parseTime(updatedAt)
	return &rc, nil
}

func (s *Store) AcknowledgeSync(ctx context.Context, agentType types.AgentType, tenantID string) error {
	const q = `UPDATE agent_runtime_configs SET sync_pending = 0 WHERE agent_type = ? AND tenant_id = ?`

	res, err := s.db.ExecContext(ctx, q, string(agentType), tenantID)
	if err != nil {
		return fmt.Errorf("acknowledging runtime config %s/%s: %w", agentType, tenantScope(tenantID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledging runtime config %s/%s: %w", agentType, tenantScope(tenantID), err)
	}
	if n == 0 {
		return fmt.Errorf("runtime config %s/%s: %w", agentType, tenantScope(tenantID), store.ErrNotFound)
	}
	return nil
}

func tenantScope(tenantID string) string {
	if tenantID == "" {
		return "global"
	}
	return tenantID
}
