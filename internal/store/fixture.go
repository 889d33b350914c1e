// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tablewise/aiwaiter/internal/menu"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// Fixture is the YAML document loaded by `aiwaiter seed`.
type Fixture struct {
	Locations      []FixtureLocation      `yaml:"locations"`
	Tables         []FixtureTable         `yaml:"tables"`
	TableSessions  []FixtureTableSession  `yaml:"table_sessions"`
	Menus          []FixtureMenu          `yaml:"menus"`
	RuntimeConfigs []FixtureRuntimeConfig `yaml:"runtime_configs"`
	Orders         []FixtureOrder         `yaml:"orders"`
}

type FixtureLocation struct {
	ID       string `yaml:"id"`
	TenantID string `yaml:"tenant_id"`
	Name     string `yaml:"name"`
	Region   string `yaml:"region"`
	Currency string `yaml:"currency"`
}

type FixtureTable struct {
	ID         string `yaml:"id"`
	LocationID string `yaml:"location_id"`
	Label      string `yaml:"label"`
}

type FixtureTableSession struct {
	ID       string    `yaml:"id"`
	TableID  string    `yaml:"table_id"`
	OpenedAt time.Time `yaml:"opened_at"`
}

type FixtureMenu struct {
	ID          string        `yaml:"id"`
	LocationID  string        `yaml:"location_id"`
	Name        string        `yaml:"name"`
	Active      bool          `yaml:"active"`
	PublishedAt time.Time     `yaml:"published_at"`
	Items       []FixtureItem `yaml:"items"`
}

type FixtureItem struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	PriceCents  int64    `yaml:"price_cents"`
	Currency    string   `yaml:"currency"`
	Allergens   []string `yaml:"allergens"`
	Tags        []string `yaml:"tags"`
	IsAlcohol   bool     `yaml:"is_alcohol"`
	// Available defaults to true when omitted.
	Available *bool `yaml:"is_available"`
}

type FixtureRuntimeConfig struct {
	AgentType           string   `yaml:"agent_type"`
	TenantID            string   `yaml:"tenant_id"`
	Enabled             *bool    `yaml:"enabled"`
	SessionBudgetUSD    float64  `yaml:"session_budget_usd"`
	DailyBudgetUSD      float64  `yaml:"daily_budget_usd"`
	Instructions        string   `yaml:"instructions"`
	ToolAllowlist       []string `yaml:"tool_allowlist"`
	AutonomyLevel       int      `yaml:"autonomy_level"`
	RetrievalTTLMinutes int      `yaml:"retrieval_ttl_minutes"`
	ExperimentFlag      string   `yaml:"experiment_flag"`
	SyncPending         bool     `yaml:"sync_pending"`
}

type FixtureOrder struct {
	ID         string    `yaml:"id"`
	LocationID string    `yaml:"location_id"`
	Status     string    `yaml:"status"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeConfigLoadReadFailure, "reading fixture %s", path)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigParseInvalidFormat, "parsing fixture")
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Validate checks ids and references inside the fixture.
func (fx *Fixture) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	locations := map[string]bool{}
	for i, l := range fx.Locations {
		if l.ID == "" {
			fail("locations[%d]: id is required", i)
		}
		locations[l.ID] = true
	}
	tables := map[string]bool{}
	for i, t := range fx.Tables {
		if t.ID == "" {
			fail("tables[%d]: id is required", i)
		}
		if !locations[t.LocationID] {
			fail("tables[%d]: unknown location %q", i, t.LocationID)
		}
		tables[t.ID] = true
	}
	for i, s := range fx.TableSessions {
		if s.ID == "" || !tables[s.TableID] {
			fail("table_sessions[%d]: id and a known table_id are required", i)
		}
	}
	for i, m := range fx.Menus {
		if m.ID == "" || !locations[m.LocationID] {
			fail("menus[%d]: id and a known location_id are required", i)
		}
		for j, it := range m.Items {
			if it.ID == "" || it.Name == "" {
				fail("menus[%d].items[%d]: id and name are required", i, j)
			}
		}
	}
	for i, rc := range fx.RuntimeConfigs {
		if _, err := types.ParseAgentType(rc.AgentType); err != nil {
			fail("runtime_configs[%d]: %v", i, err)
		}
		if !types.AutonomyLevel(rc.AutonomyLevel).Valid() {
			fail("runtime_configs[%d]: autonomy_level must be 0-3", i)
		}
	}
	for i, o := range fx.Orders {
		if o.ID == "" || !locations[o.LocationID] {
			fail("orders[%d]: id and a known location_id are required", i)
		}
	}

	if len(errs) > 0 {
		return apperr.Wrap(errors.Join(errs...), apperr.CodeConfigValidateInvalidValue, "invalid fixture")
	}
	return nil
}

// MenuItem converts a fixture item into a normalized menu item.
func (it FixtureItem) MenuItem(fallbackCurrency string) menu.Item {
	currency := it.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	available := it.Available == nil || *it.Available
	return menu.Normalize(menu.Item{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		PriceCents:  it.PriceCents,
		Currency:    currency,
		Allergens:   it.Allergens,
		Tags:        it.Tags,
		IsAlcohol:   it.IsAlcohol,
		IsAvailable: available,
	})
}

// RuntimeConfigRow converts a fixture entry to a row. Enabled defaults to
// true.
func (rc FixtureRuntimeConfig) RuntimeConfigRow() RuntimeConfig {
	agent, _ := types.ParseAgentType(rc.AgentType)
	return RuntimeConfig{
		AgentType:           agent,
		TenantID:            rc.TenantID,
		Enabled:             rc.Enabled == nil || *rc.Enabled,
		SessionBudgetUSD:    rc.SessionBudgetUSD,
		DailyBudgetUSD:      rc.DailyBudgetUSD,
		Instructions:        rc.Instructions,
		ToolAllowlist:       rc.ToolAllowlist,
		AutonomyLevel:       rc.AutonomyLevel,
		RetrievalTTLMinutes: rc.RetrievalTTLMinutes,
		ExperimentFlag:      rc.ExperimentFlag,
		SyncPending:         rc.SyncPending,
	}
}

// CurrencyFor returns the currency of locationID, or "" when unknown.
func (fx *Fixture) CurrencyFor(locationID string) string {
	for _, l := range fx.Locations {
		if l.ID == locationID {
			return l.Currency
		}
	}
	return ""
}
