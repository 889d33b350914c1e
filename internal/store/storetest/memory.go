// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/pkg/types"
)

var _ store.Store = (*Memory)(nil)

type configKey struct {
	agent  types.AgentType
	tenant string
}

// Memory is a goroutine-safe in-memory store. Err* fields inject failures.
type Memory struct {
	mu sync.Mutex

	Locations      map[string]store.Location
	Tables         map[string]store.Table
	TableSessions  map[string]store.TableSession
	Menus          map[string]store.Menu
	Items          map[string][]menu.Item
	runtimeConfigs map[configKey]store.RuntimeConfig
	Events         []store.AgentEvent
	Sessions       []store.AgentSession
	Impressions    []store.Impression
	Orders         []store.Order
	Acks           []string

	ConfigReads int

	ErrAppendEvent       error
	ErrSpend             error
	ErrCreateSession     error
	ErrRecordImpressions error
	ErrAcknowledge       error
	ErrRuntimeConfig     error
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		Locations:      map[string]store.Location{},
		Tables:         map[string]store.Table{},
		TableSessions:  map[string]store.TableSession{},
		Menus:          map[string]store.Menu{},
		Items:          map[string][]menu.Item{},
		runtimeConfigs: map[configKey]store.RuntimeConfig{},
	}
}

// PutRuntimeConfig inserts or replaces a runtime config row.
func (m *Memory) PutRuntimeConfig(rc store.RuntimeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runtimeConfigs[configKey{rc.AgentType, rc.TenantID}] = rc
}

// RuntimeConfigRow returns the stored row, if any.
func (m *Memory) RuntimeConfigRow(agent types.AgentType, tenantID string) (store.RuntimeConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.runtimeConfigs[configKey{agent, tenantID}]
	return rc, ok
}

// EventsOf returns recorded events of kind.
func (m *Memory) EventsOf(kind store.EventKind) []store.AgentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.AgentEvent
	for _, e := range m.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) GetTableSession(_ context.Context, id string) (*store.TableSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.TableSessions[id]
	if !ok {
		return nil, fmt.Errorf("table session %s: %w", id, store.ErrNotFound)
	}
	return &ts, nil
}

func (m *Memory) GetTable(_ context.Context, id string) (*store.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tables[id]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", id, store.ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) GetLocation(_ context.Context, id string) (*store.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.Locations[id]
	if !ok {
		return nil, fmt.Errorf("location %s: %w", id, store.ErrNotFound)
	}
	return &l, nil
}

func (m *Memory) GetActiveMenu(_ context.Context, locationID string) (*store.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *store.Menu
	for _, mn := range m.Menus {
		if mn.LocationID != locationID || !mn.Active {
			continue
		}
		if best == nil || mn.PublishedAt.After(best.PublishedAt) {
			cp := mn
			best = &cp
		}
	}
	if best == nil {
		return nil, fmt.Errorf("active menu for location %s: %w", locationID, store.ErrNotFound)
	}
	return best, nil
}

func (m *Memory) ListMenuItems(_ context.Context, menuID string) ([]menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]menu.Item, 0, len(m.Items[menuID]))
	for _, it := range m.Items[menuID] {
		out = append(out, menu.Normalize(it))
	}
	return out, nil
}

func (m *Memory) GetRuntimeConfig(_ context.Context, agentType types.AgentType, tenantID string) (*store.RuntimeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigReads++
	if m.ErrRuntimeConfig != nil {
		return nil, m.ErrRuntimeConfig
	}
	rc, ok := m.runtimeConfigs[configKey{agentType, tenantID}]
	if !ok {
		return nil, fmt.Errorf("runtime config %s/%q: %w", agentType, tenantID, store.ErrNotFound)
	}
	rc.ToolAllowlist = slices.Clone(rc.ToolAllowlist)
	return &rc, nil
}

func (m *Memory) AcknowledgeSync(_ context.Context, agentType types.AgentType, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acks = append(m.Acks, string(agentType)+":"+tenantID)
	if m.ErrAcknowledge != nil {
		return m.ErrAcknowledge
	}
	key := configKey{agentType, tenantID}
	rc, ok := m.runtimeConfigs[key]
	if !ok {
		return fmt.Errorf("runtime config %s/%q: %w", agentType, tenantID, store.ErrNotFound)
	}
	rc.SyncPending = false
	m.runtimeConfigs[key] = rc
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, event *store.AgentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrAppendEvent != nil {
		return m.ErrAppendEvent
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.Events = append(m.Events, *event)
	return nil
}

func (m *Memory) SpendBetween(_ context.Context, agentType types.AgentType, tenantID string, from, to time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrSpend != nil {
		return 0, m.ErrSpend
	}
	var total float64
	for _, e := range m.Events {
		if e.AgentType != agentType || e.TenantID != tenantID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		total += e.CostUSD
	}
	return total, nil
}

func (m *Memory) CreateSession(_ context.Context, session *store.AgentSession) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrCreateSession != nil {
		return "", m.ErrCreateSession
	}
	s := *session
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.Sessions = append(m.Sessions, s)
	return s.ID, nil
}

func (m *Memory) RecordImpressions(_ context.Context, impressions []store.Impression) ([]store.Impression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrRecordImpressions != nil {
		return nil, m.ErrRecordImpressions
	}
	out := make([]store.Impression, 0, len(impressions))
	for _, imp := range impressions {
		imp.ID = uuid.NewString()
		m.Impressions = append(m.Impressions, imp)
		out = append(out, imp)
	}
	return out, nil
}

func (m *Memory) OpenOrderTimes(_ context.Context, locationID string) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, o := range m.Orders {
		if o.LocationID == locationID && o.Status == store.OrderOpen {
			out = append(out, o.CreatedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Seed loads fixture rows.
func (m *Memory) Seed(_ context.Context, fx *store.Fixture) error {
	if err := fx.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range fx.Locations {
		m.Locations[l.ID] = store.Location(l)
	}
	for _, t := range fx.Tables {
		m.Tables[t.ID] = store.Table(t)
	}
	for _, ts := range fx.TableSessions {
		m.TableSessions[ts.ID] = store.TableSession(ts)
	}
	for _, mn := range fx.Menus {
		m.Menus[mn.ID] = store.Menu{ID: mn.ID, LocationID: mn.LocationID, Name: mn.Name, Active: mn.Active, PublishedAt: mn.PublishedAt}
		items := make([]menu.Item, 0, len(mn.Items))
		for _, it := range mn.Items {
			items = append(items, it.MenuItem(fx.CurrencyFor(mn.LocationID)))
		}
		m.Items[mn.ID] = items
	}
	for _, rc := range fx.RuntimeConfigs {
		row := rc.RuntimeConfigRow()
		m.runtimeConfigs[configKey{row.AgentType, row.TenantID}] = row
	}
	for _, o := range fx.Orders {
		status := store.OrderStatus(o.Status)
		if status == "" {
			status = store.OrderOpen
		}
		m.Orders = append(m.Orders, store.Order{ID: o.ID, LocationID: o.LocationID, Status: status, CreatedAt: o.CreatedAt})
	}
	return nil
}

func (m *Memory) Close() error { return nil }
