// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/store"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// DefaultFreshness is how long retrieval snapshots stay valid before any
// runtime override shortens it.
const DefaultFreshness = 5 * time.Minute

// Citation tokens carried inside the seeded snapshots.
const (
	CitationAllergenPolicy = "allergens:policy"
	CitationOpsPolicy      = "policies:ops"
)

// BuildInput identifies the guest and table for one request.
type BuildInput struct {
	TenantID       string
	LocationID     string
	TableSessionID string
	UserID         string
	Language       string
	Allergies      []string
	Cart           []menu.CartLine
	AgeVerified    bool
}

// Builder assembles a Context from the context store. It performs reads
// only.
type Builder struct {
	store     store.ContextStore
	now       func() time.Time
	freshness time.Duration
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithFreshness overrides DefaultFreshness.
func WithFreshness(d time.Duration) BuilderOption {
	return func(b *Builder) {
		if d > 0 {
			b.freshness = d
		}
	}
}

// NewBuilder creates a Builder reading from s.
func NewBuilder(s store.ContextStore, opts ...BuilderOption) *Builder {
	b := &Builder{store: s, now: time.Now, freshness: DefaultFreshness}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves identifiers, loads the active menu and derives the guest
// policy. The returned context has no session id and no suggestions.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*Context, error) {
	if in.LocationID == "" && in.TableSessionID == "" {
		return nil, apperr.New(apperr.CodeServerRequestInvalid, "location_id or table_session_id is required")
	}
	cart, err := validateCart(in.Cart)
	if err != nil {
		return nil, err
	}

	tenantID, locationID := in.TenantID, in.LocationID
	if (locationID == "" || tenantID == "") && in.TableSessionID != "" {
		resolvedLoc, resolvedTenant, err := b.resolveTableSession(ctx, in.TableSessionID)
		if err != nil {
			return nil, err
		}
		if locationID == "" {
			locationID = resolvedLoc
		}
		if tenantID == "" {
			tenantID = resolvedTenant
		}
	}

	loc, err := b.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, notFound(err, "loading location", apperr.FieldLocationID(locationID))
	}
	if tenantID == "" {
		tenantID = loc.TenantID
	}

	active, err := b.store.GetActiveMenu(ctx, loc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeContextNoActiveMenu, "no active menu for location", apperr.FieldLocationID(loc.ID))
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeStoreDatabaseFailure, "loading active menu", apperr.FieldLocationID(loc.ID))
	}

	rows, err := b.store.ListMenuItems(ctx, active.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeStoreDatabaseFailure, "loading menu items", apperr.Field("menu_id", active.ID))
	}
	items := make([]menu.Item, 0, len(rows))
	for _, it := range rows {
		it = menu.Normalize(it)
		if it.Currency == "" {
			it.Currency = loc.Currency
		}
		items = append(items, it)
	}

	sc := &Context{
		TenantID:         tenantID,
		LocationID:       loc.ID,
		TableSessionID:   in.TableSessionID,
		UserID:           in.UserID,
		Region:           loc.Region,
		Language:         in.Language,
		Currency:         loc.Currency,
		LegalDrinkingAge: LegalDrinkingAge(loc.Region),
		AvoidAlcohol:     !in.AgeVerified,
		Allergies:        menu.NormalizeAllergies(in.Allergies),
		Cart:             cart,
		MenuID:           active.ID,
		Menu:             items,
		Suggestions:      []menu.Suggestion{},
		RetrievalTTL:     b.freshness,
		RuntimeOverrides: map[types.AgentType]Override{},
	}
	if err := b.seedRetrieval(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (b *Builder) resolveTableSession(ctx context.Context, tableSessionID string) (locationID, tenantID string, err error) {
	ts, err := b.store.GetTableSession(ctx, tableSessionID)
	if err != nil {
		return "", "", notFound(err, "resolving table session", apperr.Field("table_session_id", tableSessionID))
	}
	table, err := b.store.GetTable(ctx, ts.TableID)
	if err != nil {
		return "", "", notFound(err, "resolving table", apperr.Field("table_id", ts.TableID))
	}
	loc, err := b.store.GetLocation(ctx, table.LocationID)
	if err != nil {
		return "", "", notFound(err, "resolving location", apperr.FieldLocationID(table.LocationID))
	}
	return loc.ID, loc.TenantID, nil
}

// LegalDrinkingAge is 17 for the EU region and 18 elsewhere.
func LegalDrinkingAge(region string) int {
	if strings.EqualFold(strings.TrimSpace(region), "EU") {
		return 17
	}
	return 18
}

func validateCart(in []menu.CartLine) ([]menu.CartLine, error) {
	out := make([]menu.CartLine, 0, len(in))
	for i, line := range in {
		if strings.TrimSpace(line.ItemID) == "" || line.Quantity < 1 {
			return nil, apperr.New(apperr.CodeServerRequestInvalid, "cart lines need an item_id and quantity >= 1",
				apperr.Field("cart_index", i))
		}
		out = append(out, line)
	}
	return out, nil
}

func notFound(err error, msg string, fields ...apperr.Attr) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(err, apperr.CodeContextEntityNotFound, msg, fields...)
	}
	return apperr.Wrap(err, apperr.CodeStoreDatabaseFailure, msg, fields...)
}

type menuSnapshotItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PriceCents  int64    `json:"price_cents"`
	Currency    string   `json:"currency"`
	Allergens   []string `json:"allergens"`
	Tags        []string `json:"tags"`
	IsAlcohol   bool     `json:"is_alcohol"`
	IsAvailable bool     `json:"is_available"`
	Citation    string   `json:"citation"`
}

func (b *Builder) seedRetrieval(sc *Context) error {
	expires := b.now().Add(sc.RetrievalTTL)

	menuItems := make([]menuSnapshotItem, 0, len(sc.Menu))
	conflicts := map[string][]string{}
	for _, it := range sc.Menu {
		menuItems = append(menuItems, menuSnapshotItem{
			ID: it.ID, Name: it.Name, Description: it.Description, PriceCents: it.PriceCents,
			Currency: it.Currency, Allergens: it.Allergens, Tags: it.Tags,
			IsAlcohol: it.IsAlcohol, IsAvailable: it.IsAvailable, Citation: menu.Citation(it.ID),
		})
		if c := menu.ConflictingAllergens(it, sc.Allergies); len(c) > 0 {
			conflicts[it.ID] = c
		}
	}

	payloads := map[string]any{
		SnapshotMenu: map[string]any{
			"menu_id": sc.MenuID,
			"items":   menuItems,
		},
		SnapshotAllergens: map[string]any{
			"citation":       CitationAllergenPolicy,
			"declared":       sc.Allergies,
			"conflicts":      conflicts,
			"rule":           "Never recommend an item whose allergens overlap the guest's declared allergies.",
			"unknown_policy": "If allergen data is missing, say so and suggest asking staff.",
		},
		SnapshotPolicies: map[string]any{
			"citation":           CitationOpsPolicy,
			"region":             sc.Region,
			"currency":           sc.Currency,
			"language":           sc.Language,
			"legal_drinking_age": sc.LegalDrinkingAge,
			"avoid_alcohol":      sc.AvoidAlcohol,
			"payments":           "Orders are proposals only; staff confirm and charge at the table.",
		},
	}

	sc.Retrieval = make(map[string]Snapshot, len(payloads))
	for _, name := range snapshotOrder {
		raw, err := json.Marshal(payloads[name])
		if err != nil {
			return apperr.Wrap(err, apperr.CodeServerInternalFailure, "encoding retrieval snapshot", apperr.Field("snapshot", name))
		}
		sc.Retrieval[name] = Snapshot{Name: name, ExpiresAt: expires, Payload: string(raw)}
	}
	return nil
}
