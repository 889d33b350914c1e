// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package store

import (
	"context"
	"time"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// ContextStore is the read-only view of tenants, locations, tables and menus
// used to assemble a request context.
type ContextStore interface {
	GetTableSession(ctx context.Context, id string) (*TableSession, error)
	GetTable(ctx context.Context, id string) (*Table, error)
	GetLocation(ctx context.Context, id string) (*Location, error)
	// GetActiveMenu returns the most recently published active menu.
	GetActiveMenu(ctx context.Context, locationID string) (*Menu, error)
	ListMenuItems(ctx context.Context, menuID string) ([]menu.Item, error)
}

// RuntimeConfigStore reads agent_runtime_configs rows. An empty tenantID
// addresses the global row.
type RuntimeConfigStore interface {
	GetRuntimeConfig(ctx context.Context, agentType types.AgentType, tenantID string) (*RuntimeConfig, error)
	// AcknowledgeSync clears sync_pending on the addressed row.
	AcknowledgeSync(ctx context.Context, agentType types.AgentType, tenantID string) error
}

// SpendReader sums recorded agent cost over a time window.
type SpendReader interface {
	// SpendBetween returns the total cost_usd of events for agentType and
	// tenantID with from <= created_at < to.
	SpendBetween(ctx context.Context, agentType types.AgentType, tenantID string, from, to time.Time) (float64, error)
}

// TelemetryStore is the append-only audit surface.
type TelemetryStore interface {
	SpendReader
	AppendEvent(ctx context.Context, event *AgentEvent) error
	// CreateSession inserts an agent_sessions row and returns its id.
	CreateSession(ctx context.Context, session *AgentSession) (string, error)
	// RecordImpressions inserts one row per impression and returns them with
	// ids assigned, in input order.
	RecordImpressions(ctx context.Context, impressions []Impression) ([]Impression, error)
}

// OrderStore exposes open orders for kitchen load estimates.
type OrderStore interface {
	OpenOrderTimes(ctx context.Context, locationID string) ([]time.Time, error)
}

// Seeder loads fixture data.
type Seeder interface {
	Seed(ctx context.Context, fx *Fixture) error
}

// Store is implemented by every backend.
type Store interface {
	ContextStore
	RuntimeConfigStore
	TelemetryStore
	OrderStore
	Seeder
	Close() error
}
