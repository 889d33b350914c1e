// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/store"
)

func (s *Store) GetTableSession(ctx context.Context, id string) (*store.TableSession, error) {
	const q = `SELECT id, table_id, opened_at FROM table_sessions WHERE id = ?`

	var ts store.TableSession
	var openedAt string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&ts.ID, &ts.TableID, &openedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting table session %s: %w", id, err)
	}
	ts.OpenedAt = parseTime(openedAt)
	return &ts, nil
}

func (s *Store) GetTable(ctx context.Context, id string) (*store.Table, error) {
	const q = `SELECT id, location_id, label FROM tables WHERE id = ?`

	var t store.Table
	err := s.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.LocationID, &t.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting table %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (*store.Location, error) {
	const q = `SELECT id, tenant_id, name, region, currency FROM locations WHERE id = ?`

	var l store.Location
	err := s.db.QueryRowContext(ctx, q, id).Scan(&l.ID, &l.TenantID, &l.Name, &l.Region, &l.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting location %s: %w", id, err)
	}
	return &l, nil
}

func (s *Store) GetActiveMenu(ctx context.Context, locationID string) (*store.Menu, error) {
	const q = `SELECT id, location_id, name, active, published_at FROM menus
WHERE location_id = ? AND active = 1
ORDER BY published_at DESC LIMIT 1`

	var m store.Menu
	var publishedAt string
	err := s.db.QueryRowContext(ctx, q, locationID).Scan(&m.ID, &m.LocationID, &m.Name, &m.Active, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active menu for location %s: %w", locationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting active menu for location %s: %w", locationID, err)
	}
	m.PublishedAt = parseTime(publishedAt)
	return &m, nil
}

func (s *Store) ListMenuItems(ctx context.Context, menuID string) ([]menu.Item, error) {
	const q = `SELECT id, name, description, price_cents, currency, allergens, tags, is_alcohol, is_available
FROM menu_items WHERE menu_id = ? ORDER BY position, id`

	rows, err := s.db.QueryContext(ctx, q, menuID)
	if err != nil {
		return nil, fmt.Errorf("listing items for menu %s: %w", menuID, err)
	}
	defer func() { _ = rows.Close() }()

	items := []menu.Item{}
	for rows.Next() {
		var (
			it        menu.Item
			price     sql.NullInt64
			allergens sql.NullString
			tags      sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &price, &it.Currency,
			&allergens, &tags, &it.IsAlcohol, &it.IsAvailable); err != nil {
			return nil, fmt.Errorf("scanning menu item: %w", err)
		}
		it.PriceCents = price.Int64
		it.Allergens = decodeStrings(allergens)
		it.Tags = decodeStrings(tags)
		items = append(items, menu.Normalize(it))
	}
	return items, rows.Err()
}

func (s *Store) OpenOrderTimes(ctx context.Context, locationID string) ([]time.Time, error) {
	const q = `SELECT created_at FROM orders WHERE location_id = ? AND status = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, q, locationID, string(store.OrderOpen))
	if err != nil {
		return nil, fmt.Errorf("listing open orders for location %s: %w", locationID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, parseTime(raw))
	}
	return out, rows.Err()
}
