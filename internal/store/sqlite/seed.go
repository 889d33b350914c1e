// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/tablewise/aiwaiter/internal/store"
)

// Seed upserts every fixture row in one transaction.
func (s *Store) Seed(ctx context.Context, fx *store.Fixture) error {
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
		if err := exec("location "+l.ID,
			`INSERT INTO locations (id, tenant_id, name, region, currency) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET tenant_id = excluded.tenant_id, name = excluded.name,
	region = excluded.region, currency = excluded.currency`,
			l.ID, l.TenantID, l.Name, l.Region, l.Currency); err != nil {
			return err
		}
	}
	for _, t := range fx.Tables {
		if err := exec("table "+t.ID,
			`INSERT INTO tables (id, location_id, label) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET location_id = excluded.location_id, label = excluded.label`,
			t.ID, t.LocationID, t.Label); err != nil {
			return err
		}
	}
	for _, ts := range fx.TableSessions {
		if err := exec("table session "+ts.ID,
			`INSERT INTO table_sessions (id, table_id, opened_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET table_id = excluded.table_id, opened_at = excluded.opened_at`,
			ts.ID, ts.TableID, formatTime(ts.OpenedAt)); err != nil {
			return err
		}
	}
	for _, m := range fx.Menus {
		if err := exec("menu "+m.ID,
			`INSERT INTO menus (id, location_id, name, active, published_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET location_id = excluded.location_id, name = excluded.name,
	active = excluded.active, published_at = excluded.published_at`,
			m.ID, m.LocationID, m.Name, boolInt(m.Active), formatTime(m.PublishedAt)); err != nil {
			return err
		}
		currency := fx.CurrencyFor(m.LocationID)
		for pos, raw := range m.Items {
			it := raw.MenuItem(currency)
			if err := exec("menu item "+it.ID,
				`INSERT OR REPLACE INTO menu_items (id, menu_id, position, name, description, price_cents, currency,
	allergens, tags, is_alcohol, is_available) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				it.ID, m.ID, pos, it.Name, it.Description, it.PriceCents, it.Currency,
				encodeStrings(it.Allergens), encodeStrings(it.Tags), boolInt(it.IsAlcohol), boolInt(it.IsAvailable)); err != nil {
				return err
			}
		}
	}
	now := time.Now().UTC()
	for _, raw := range fx.RuntimeConfigs {
		rc := raw.RuntimeConfigRow()
		if err := exec("runtime config "+string(rc.AgentType),
			`INSERT OR REPLACE INTO agent_runtime_configs (agent_type, tenant_id, enabled, session_budget_usd,
	daily_budget_usd, instructions, tool_allowlist, autonomy_level, retrieval_ttl_minutes, experiment_flag,
	sync_pending, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(rc.AgentType), rc.TenantID, boolInt(rc.Enabled), rc.SessionBudgetUSD, rc.DailyBudgetUSD,
			rc.Instructions, encodeStrings(rc.ToolAllowlist), rc.AutonomyLevel, rc.RetrievalTTLMinutes,
			rc.ExperimentFlag, boolInt(rc.SyncPending), formatTime(now)); err != nil {
			return err
		}
	}
	for _, o := range fx.Orders {
		status := o.Status
		if status == "" {
			status = string(store.OrderOpen)
		}
		if err := exec("order "+o.ID,
			`INSERT OR REPLACE INTO orders (id, location_id, status, created_at) VALUES (?, ?, ?, ?)`,
			o.ID, o.LocationID, status, formatTime(o.CreatedAt)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}
