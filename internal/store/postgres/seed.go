// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package postgres

import (
	"context"
	"fmt"

	"github.com/tablewise/aiwaiter/internal/store"
)

// Seed migrates the schema and upserts every fixture row in one transaction.
func (s *Store) Seed(ctx context.Context, fx *store.Fixture) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(what, q string, args ...any) error {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("seeding %s: %w", what, err)
		}
		return nil
	}

	for _, l := range fx.Locations {
		if err := exec("location "+l.ID, `
			INSERT INTO locations (id, tenant_id, name, region, currency) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name,
				region = EXCLUDED.region, currency = EXCLUDED.currency
		`, l.ID, nullableString(l.TenantID), l.Name, l.Region, l.Currency); err != nil {
			return err
		}
	}
	for _, t := range fx.Tables {
		if err := exec("table "+t.ID, `
			INSERT INTO tables (id, location_id, label) VALUES ($1,$2,$3)
			ON CONFLICT (id) DO UPDATE SET location_id = EXCLUDED.location_id, label = EXCLUDED.label
		`, t.ID, t.LocationID, t.Label); err != nil {
			return err
		}
	}
	for _, ts := range fx.TableSessions {
		if err := exec("table session "+ts.ID, `
			INSERT INTO table_sessions (id, table_id, opened_at) VALUES ($1,$2,$3)
			ON CONFLICT (id) DO UPDATE SET table_id = EXCLUDED.table_id, opened_at = EXCLUDED.opened_at
		`, ts.ID, ts.TableID, nullTime(ts.OpenedAt)); err != nil {
			return err
		}
	}
	for _, m := range fx.Menus {
		if err := exec("menu "+m.ID, `
			INSERT INTO menus (id, location_id, name, active, published_at) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO UPDATE SET location_id = EXCLUDED.location_id, name = EXCLUDED.name,
				active = EXCLUDED.active, published_at = EXCLUDED.published_at
		`, m.ID, m.LocationID, m.Name, m.Active, nullTime(m.PublishedAt)); err != nil {
			return err
		}
		currency := fx.CurrencyFor(m.LocationID)
		for pos, raw := range m.Items {
			it := raw.MenuItem(currency)
			if err := exec("menu item "+it.ID, `
				INSERT INTO menu_items (id, menu_id, position, name, description, price_cents, currency,
					allergens, tags, is_alcohol, is_available)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
				ON CONFLICT (id) DO UPDATE SET menu_id = EXCLUDED.menu_id, position = EXCLUDED.position,
					name = EXCLUDED.name, description = EXCLUDED.description, price_cents = EXCLUDED.price_cents,
					currency = EXCLUDED.currency, allergens = EXCLUDED.allergens, tags = EXCLUDED.tags,
					is_alcohol = EXCLUDED.is_alcohol, is_available = EXCLUDED.is_available
			`, it.ID, m.ID, pos, it.Name, it.Description, it.PriceCents, it.Currency,
				stringArray(it.Allergens), stringArray(it.Tags), it.IsAlcohol, it.IsAvailable); err != nil {
				return err
			}
		}
	}
	for _, raw := range fx.RuntimeConfigs {
		rc := raw.RuntimeConfigRow()
		if err := exec("runtime config "+string(rc.AgentType), `
			INSERT INTO agent_runtime_configs (agent_type, tenant_id, enabled, session_budget_usd, daily_budget_usd,
				instructions, tool_allowlist, autonomy_level, retrieval_ttl_minutes, experiment_flag, sync_pending, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (agent_type, COALESCE(tenant_id, '')) DO UPDATE SET enabled = EXCLUDED.enabled,
				session_budget_usd = EXCLUDED.session_budget_usd, daily_budget_usd = EXCLUDED.daily_budget_usd,
				instructions = EXCLUDED.instructions, tool_allowlist = EXCLUDED.tool_allowlist,
				autonomy_level = EXCLUDED.autonomy_level, retrieval_ttl_minutes = EXCLUDED.retrieval_ttl_minutes,
				experiment_flag = EXCLUDED.experiment_flag, sync_pending = EXCLUDED.sync_pending,
				updated_at = EXCLUDED.updated_at
		`, string(rc.AgentType), nullableString(rc.TenantID), rc.Enabled, rc.SessionBudgetUSD, rc.DailyBudgetUSD,
			rc.Instructions, stringArray(rc.ToolAllowlist), rc.AutonomyLevel, rc.RetrievalTTLMinutes,
			rc.ExperimentFlag, rc.SyncPending, s.now()); err != nil {
			return err
		}
	}
	for _, o := range fx.Orders {
		status := o.Status
		if status == "" {
			status = string(store.OrderOpen)
		}
		if err := exec("order "+o.ID, `
			INSERT INTO orders (id, location_id, status, created_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET location_id = EXCLUDED.location_id, status = EXCLUDED.status,
				created_at = EXCLUDED.created_at
		`, o.ID, o.LocationID, status, o.CreatedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}
