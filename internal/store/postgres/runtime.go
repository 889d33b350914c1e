// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/pkg/types"
)

const runtimeConfigColumns = `agent_type, tenant_id, enabled, session_budget_usd, daily_budget_usd, instructions,
	tool_allowlist, autonomy_level, retrieval_ttl_minutes, experiment_flag, sync_pending, updated_at`

// GetRuntimeConfig returns the row for exactly (agentType, tenantID); an
// empty tenantID selects the row whose tenant_id IS NULL.
func (s *Store) GetRuntimeConfig(ctx context.Context, agentType types.AgentType, tenantID string) (*store.RuntimeConfig, error) {
	var row *sql.Row
	if tenantID == "" {
		row = s.db.QueryRowContext(ctx, `SELECT `+runtimeConfigColumns+`
			FROM agent_runtime_configs WHERE agent_type = $1 AND tenant_id IS NULL`, string(agentType))
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+runtimeConfigColumns+`
			FROM agent_runtime_configs WHERE agent_type = $1 AND tenant_id = $2`, string(agentType), tenantID)
	}

	var (
		rc        store.RuntimeConfig
		agent     string
		tenant    sql.NullString
		allowlist []string
	)
	err := row.Scan(
		&agent,
		&tenant,
		&rc.Enabled,
		&rc.SessionBudgetUSD,
		&rc.DailyBudgetUSD,
		&rc.Instructions,
		pq.Array(&allowlist),
		&rc.AutonomyLevel,
		&rc.RetrievalTTLMinutes,
		&rc.ExperimentFlag,
		&rc.SyncPending,
		&rc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("runtime config %s/%s: %w", agentType, tenantScope(tenantID), store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting runtime config %s/%s: %w", agentType, tenantScope(tenantID), err)
	}
	rc.AgentType = types.AgentType(agent)
	rc.TenantID = tenant.String
	rc.ToolAllowlist = allowlist
	if rc.ToolAllowlist == nil {
		rc.ToolAllowlist = []string{}
	}
	return &rc, nil
}

func (s *Store) AcknowledgeSync(ctx context.Context, agentType types.AgentType, tenantID string) error {
	var (
		res sql.Result
		err error
	)
	if tenantID == "" {
		res, err = s.db.ExecContext(ctx, `UPDATE agent_runtime_configs SET sync_pending = FALSE
			WHERE agent_type = $1 AND tenant_id IS NULL`, string(agentType))
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE agent_runtime_configs SET sync_pending = FALSE
			WHERE agent_type = $1 AND tenant_id = $2`, string(agentType), tenantID)
	}
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
