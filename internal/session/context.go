// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package session holds the per-request agent session context and the
// builder that assembles it from the context store.
package session

import (
	"slices"
	"time"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// Retrieval snapshot names, in prompt order.
const (
	SnapshotMenu      = "menu"
	SnapshotAllergens = "allergens"
	SnapshotPolicies  = "policies"
)

var snapshotOrder = []string{SnapshotMenu, SnapshotAllergens, SnapshotPolicies}

// Snapshot is a time-boxed piece of grounding knowledge handed to agents.
type Snapshot struct {
	Name      string
	ExpiresAt time.Time
	Payload   string
}

// Override is the runtime policy applied to one agent for this request.
type Override struct {
	Instructions   string
	ToolAllowlist  []string
	AutonomyLevel  types.AutonomyLevel
	RetrievalTTL   time.Duration
	ExperimentFlag string
}

// Allows reports whether tool may be called. An empty allowlist permits all
// tools.
func (o Override) Allows(tool string) bool {
	return len(o.ToolAllowlist) == 0 || slices.Contains(o.ToolAllowlist, tool)
}

// Context is the state shared by every stage of one request. It is owned by
// a single request goroutine and never shared.
type Context struct {
	SessionID      string
	TenantID       string
	LocationID     string
	TableSessionID string
	UserID         string

	Region           string
	Language         string
	Currency         string
	LegalDrinkingAge int
	AvoidAlcohol     bool

	Allergies []string
	Cart      []menu.CartLine

	MenuID string
	Menu   []menu.Item

	Suggestions []menu.Suggestion

	Retrieval        map[string]Snapshot
	RetrievalTTL     time.Duration
	RuntimeOverrides map[types.AgentType]Override

	Disclaimers Disclaimers
}

// Policy returns the guest safety policy.
func (c *Context) Policy() menu.Policy {
	return menu.Policy{Allergies: c.Allergies, AvoidAlcohol: c.AvoidAlcohol, Cart: c.Cart}
}

// Item looks up a menu item by id.
func (c *Context) Item(id string) (menu.Item, bool) {
	for _, it := range c.Menu {
		if it.ID == id {
			return it, true
		}
	}
	return menu.Item{}, false
}

// OverrideFor returns the override applied for agent, if any.
func (c *Context) OverrideFor(agent types.AgentType) (Override, bool) {
	o, ok := c.RuntimeOverrides[agent]
	return o, ok
}

// ApplyOverride records o for agent. The context-wide retrieval TTL becomes
// the smaller of the current TTL and o.RetrievalTTL (when set), and every
// snapshot is re-stamped to expire at now plus that TTL.
func (c *Context) ApplyOverride(agent types.AgentType, o Override, now time.Time) {
	if c.RuntimeOverrides == nil {
		c.RuntimeOverrides = make(map[types.AgentType]Override)
	}
	o.ToolAllowlist = slices.Clone(o.ToolAllowlist)
	c.RuntimeOverrides[agent] = o

	if o.RetrievalTTL > 0 && (c.RetrievalTTL <= 0 || o.RetrievalTTL < c.RetrievalTTL) {
		c.RetrievalTTL = o.RetrievalTTL
	}
	c.restamp(now)
}

func (c *Context) restamp(now time.Time) {
	for name, snap := range c.Retrieval {
		snap.ExpiresAt = now.Add(c.RetrievalTTL)
		c.Retrieval[name] = snap
	}
}

// FreshSnapshots returns the snapshots that have not expired at now, in
// menu, allergens, policies order.
func (c *Context) FreshSnapshots(now time.Time) []Snapshot {
	out := make([]Snapshot, 0, len(c.Retrieval))
	for _, name := range snapshotOrder {
		snap, ok := c.Retrieval[name]
		if !ok || !now.Before(snap.ExpiresAt) {
			continue
		}
		out = append(out, snap)
	}
	return out
}
