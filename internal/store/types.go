// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package store

import (
	"time"

	"github.com/tablewise/aiwaiter/pkg/types"
)

// Location is a restaurant site. Region drives the legal drinking age.
type Location struct {
	ID       string
	TenantID string
	Name     string
	Region   string
	Currency string
}

// Table is a physical table at a location.
type Table struct {
	ID         string
	LocationID string
	Label      string
}

// TableSession is one seating at a table.
type TableSession struct {
	ID       string
	TableID  string
	OpenedAt time.Time
}

// Menu is a published menu for a location.
type Menu struct {
	ID          string
	LocationID  string
	Name        string
	Active      bool
	PublishedAt time.Time
}

// RuntimeConfig is one agent_runtime_configs row. TenantID is empty for the
// global row.
type RuntimeConfig struct {
	AgentType           types.AgentType
	TenantID            string
	Enabled             bool
	SessionBudgetUSD    float64
	DailyBudgetUSD      float64
	Instructions        string
	ToolAllowlist       []string
	AutonomyLevel       int
	RetrievalTTLMinutes int
	ExperimentFlag      string
	SyncPending         bool
	UpdatedAt           time.Time
}

// EventKind classifies agent_events rows.
type EventKind string

const (
	EventInvocation    EventKind = "agent_invocation"
	EventFailure       EventKind = "agent_failure"
	EventOrderProposal EventKind = "agent_order_proposal"
)

// AgentEvent is one agent_events row.
type AgentEvent struct {
	ID             string
	Kind           EventKind
	AgentType      types.AgentType
	SessionID      string
	TenantID       string
	LocationID     string
	TableSessionID string
	Input          string
	Output         string
	ToolsUsed      []string
	LatencyMS      int64
	CostUSD        float64
	CreatedAt      time.Time
}

// AgentSession is one agent_sessions row.
type AgentSession struct {
	ID             string
	TenantID       string
	LocationID     string
	TableSessionID string
	UserID         string
	CreatedAt      time.Time
}

// Impression records that a suggestion was shown to a guest.
type Impression struct {
	ID         string
	SessionID  string
	TenantID   string
	LocationID string
	ItemID     string
	Rationale  string
	Accepted   bool
	CreatedAt  time.Time
}

// OrderStatus is the lifecycle of a kitchen order.
type OrderStatus string

const (
	OrderOpen   OrderStatus = "open"
	OrderClosed OrderStatus = "closed"
)

// Order is a kitchen ticket.
type Order struct {
	ID         string
	LocationID string
	Status     OrderStatus
	CreatedAt  time.Time
}
