// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/store"
)

func (s *Store) GetTableSession(ctx context.Context, id string) (*store.TableSession, error) {
	var (
		ts       store.TableSession
		openedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, table_id, opened_at FROM table_sessions WHERE id = $1`, id).
		Scan(&ts.ID, &ts.TableID, &openedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting table session %s: %w", id, err)
	}
	ts.OpenedAt = openedAt.Time
	return &ts, nil
}

func (s *Store) GetTable(ctx context.Context, id string) (*store.Table, error) {
	var t store.Table
	err := s.db.QueryRowContext(ctx, `SELECT id, location_id, label FROM tables WHERE id = $1`, id).
		Scan(&t.ID, &t.LocationID, &t.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting table %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (*store.Location, error) {
	var (
		l        store.Location
		tenantID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, name, region, currency FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &tenantID, &l.Name, &l.Region, &l.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting location %s: %w", id, err)
	}
	l.TenantID = tenantID.String
	return &l, nil
}

func (s *Store) GetActiveMenu(ctx context.Context, locationID string) (*store.Menu, error) {
	var (
		m           store.Menu
		publishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, location_id, name, active, published_at FROM menus
		WHERE location_id = $1 AND active
		ORDER BY published_at DESC NULLS LAST
		LIMIT 1
	`, locationID).Scan(&m.ID, &m.LocationID, &m.Name, &m.Active, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active menu for location %s: %w", locationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting active menu for location %s: %w", locationID, err)
	}
	m.PublishedAt = publishedAt.Time
	return &m, nil
}

func (s *Store) ListMenuItems(ctx context.Context, menuID string) ([]menu.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price_cents, currency, allergens, tags, is_alcohol, is_available
		FROM menu_items WHERE menu_id = $1
		ORDER BY position, id
	`, menuID)
	if err != nil {
		return nil, fmt.Errorf("listing items for menu %s: %w", menuID, err)
	}
	defer func() { _ = rows.Close() }()

	items := []menu.Item{}
	for rows.Next() {
		var (
			it          menu.Item
			description sql.NullString
			price       sql.NullInt64
			currency    sql.NullString
			allergens   []string
			tags        []string
			alcohol     sql.NullBool
			available   sql.NullBool
		)
		if err := rows.Scan(&it.ID, &it.Name, &description, &price, &currency,
			pq.Array(&allergens), pq.Array(&tags), &alcohol, &available); err != nil {
			return nil, fmt.Errorf("scanning menu item: %w", err)
		}
		it.Description = description.String
		it.PriceCents = price.Int64
		it.Currency = currency.String
		it.Allergens = allergens
		it.Tags = tags
		it.IsAlcohol = alcohol.Bool
		it.IsAvailable = !available.Valid || available.Bool
		items = append(items, menu.Normalize(it))
	}
	return items, rows.Err()
}

func (s *Store) OpenOrderTimes(ctx context.Context, locationID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at FROM orders
		WHERE location_id = $1 AND status = $2
		ORDER BY created_at
	`, locationID, string(store.OrderOpen))
	if err != nil {
		return nil, fmt.Errorf("listing open orders for location %s: %w", locationID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}
