// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package runtimecfg

import (
	"slices"
	"time"

	"github.com/tablewise/aiwaiter/internal/budget"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// Source records which layer supplied a Config.
type Source string

const (
	SourceTenant  Source = "tenant"
	SourceGlobal  Source = "global"
	SourceDefault Source = "default"
)

// DefaultRetrievalTTLMinutes matches the context builder's freshness window.
const DefaultRetrievalTTLMinutes = 5

// Config is the resolved operational policy of one agent for one tenant.
type Config struct {
	AgentType types.AgentType
	// TenantID is the tenant of the row that supplied the config; empty for
	// the global row and for defaults.
	TenantID            string
	Source              Source
	Enabled             bool
	SessionBudgetUSD    float64
	DailyBudgetUSD      float64
	Instructions        string
	ToolAllowlist       []string
	AutonomyLevel       types.AutonomyLevel
	RetrievalTTLMinutes int
	ExperimentFlag      string
	SyncPending         bool
}

// DefaultConfig is used when neither a tenant nor a global row exists.
func DefaultConfig(agent types.AgentType) Config {
	return Config{
		AgentType:           agent,
		Source:              SourceDefault,
		Enabled:             true,
		AutonomyLevel:       types.AutonomyL1,
		RetrievalTTLMinutes: DefaultRetrievalTTLMinutes,
		ToolAllowlist:       []string{},
	}
}

func fromRow(row *store.RuntimeConfig) Config {
	src := SourceGlobal
	if row.TenantID != "" {
		src = SourceTenant
	}
	allow := slices.Clone(row.ToolAllowlist)
	if allow == nil {
		allow = []string{}
	}
	return Config{
		AgentType:           row.AgentType,
		TenantID:            row.TenantID,
		Source:              src,
		Enabled:             row.Enabled,
		SessionBudgetUSD:    row.SessionBudgetUSD,
		DailyBudgetUSD:      row.DailyBudgetUSD,
		Instructions:        row.Instructions,
		ToolAllowlist:       allow,
		AutonomyLevel:       types.ClampAutonomy(row.AutonomyLevel),
		RetrievalTTLMinutes: row.RetrievalTTLMinutes,
		ExperimentFlag:      row.ExperimentFlag,
		SyncPending:         row.SyncPending,
	}
}

func (c Config) clone() Config {
	c.ToolAllowlist = slices.Clone(c.ToolAllowlist)
	return c
}

// Limits returns the spend ceilings.
func (c Config) Limits() budget.Limits {
	return budget.Limits{SessionUSD: c.SessionBudgetUSD, DailyUSD: c.DailyBudgetUSD}
}

// Override converts the config to the per-request override recorded on the
// session context. A non-positive TTL leaves the context TTL unchanged.
func (c Config) Override() session.Override {
	o := session.Override{
		Instructions:   c.Instructions,
		ToolAllowlist:  slices.Clone(c.ToolAllowlist),
		AutonomyLevel:  c.AutonomyLevel,
		ExperimentFlag: c.ExperimentFlag,
	}
	if c.RetrievalTTLMinutes > 0 {
		o.RetrievalTTL = time.Duration(c.RetrievalTTLMinutes) * time.Minute
	}
	return o
}

// Apply records cfg as agent's override on sc. The most restrictive retrieval
// TTL seen so far governs every snapshot from now on.
func Apply(sc *session.Context, agent types.AgentType, cfg Config, now time.Time) {
	sc.ApplyOverride(agent, cfg.Override(), now)
}
