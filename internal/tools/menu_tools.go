// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package tools

import (
	"context"
	"strings"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/session"
)

// MenuEntry is one get_menu row. Conflicts and alcohol restrictions are
// annotated rather than filtered so the agent can explain them.
type MenuEntry struct {
	menu.Item
	AllergenConflicts []string `json:"allergen_conflicts"`
	AlcoholRestricted bool     `json:"alcohol_restricted,omitempty"`
	InCart            bool     `json:"in_cart,omitempty"`
	Eligible          bool     `json:"eligible"`
	Citation          string   `json:"citation"`
}

type getMenuArgs struct {
	Limit              int      `json:"limit"`
	Tags               []string `json:"tags"`
	Goals              []string `json:"goals"`
	IncludeUnavailable bool     `json:"include_unavailable"`
}

type getMenuResult struct {
	Items     []MenuEntry `json:"items"`
	Count     int         `json:"count"`
	Truncated bool        `json:"truncated"`
}

type getMenuTool struct{}

func (getMenuTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        GetMenu,
		Description: "List items on the active menu with allergen conflicts for this table.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit":               map[string]any{"type": "integer", "minimum": 1, "maximum": menu.MaxListingLimit},
				"tags":                map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"goals":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"include_unavailable": map[string]any{"type": "boolean"},
			},
		},
	}
}

func (getMenuTool) Run(_ context.Context, call Call, sc *session.Context) (any, error) {
	var args getMenuArgs
	if err := decodeArgs(call, &args); err != nil {
		return nil, err
	}
	if args.Limit < 0 {
		return nil, invalidInput(call, "limit must be positive, got %d", args.Limit)
	}
	limit := args.Limit
	if limit == 0 || limit > menu.MaxListingLimit {
		limit = menu.MaxListingLimit
	}

	candidates := make([]menu.Item, 0, len(sc.Menu))
	for _, it := range sc.Menu {
		if !it.IsAvailable && !args.IncludeUnavailable {
			continue
		}
		if len(args.Tags) > 0 && !it.HasAnyTag(args.Tags...) {
			continue
		}
		candidates = append(candidates, it)
	}

	ranked := menu.Rank(candidates, menu.ParseGoals(args.Goals), limit, menu.MaxListingLimit)
	policy := sc.Policy()
	entries := make([]MenuEntry, 0, len(ranked))
	for _, it := range ranked {
		conflicts := menu.ConflictingAllergens(it, sc.Allergies)
		if conflicts == nil {
			conflicts = []string{}
		}
		entries = append(entries, MenuEntry{
			Item:              it,
			AllergenConflicts: conflicts,
			AlcoholRestricted: it.IsAlcohol && sc.AvoidAlcohol,
			InCart:            inCart(policy, it.ID),
			Eligible:          menu.Eligible(it, policy),
			Citation:          menu.Citation(it.ID),
		})
	}
	return getMenuResult{
		Items:     entries,
		Count:     len(entries),
		Truncated: len(candidates) > len(entries),
	}, nil
}

func inCart(p menu.Policy, itemID string) bool {
	for _, l := range p.Cart {
		if l.ItemID == itemID {
			return true
		}
	}
	return false
}

type checkAllergensArgs struct {
	ItemIDs []string `json:"item_ids"`
}

// AllergenCheck is the check_allergens verdict for one item.
type AllergenCheck struct {
	ItemID    string   `json:"item_id"`
	Name      string   `json:"name,omitempty"`
	Found     bool     `json:"found"`
	Safe      bool     `json:"safe"`
	Conflicts []string `json:"conflicts"`
	Citation  string   `json:"citation,omitempty"`
}

type checkAllergensResult struct {
	Allergies []string        `json:"allergies"`
	Results   []AllergenCheck `json:"results"`
}

type checkAllergensTool struct{}

func (checkAllergensTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        CheckAllergens,
		Description: "Check menu items against the guest's declared allergies.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"item_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
			},
			"required": []string{"item_ids"},
		},
	}
}

func (checkAllergensTool) Run(_ context.Context, call Call, sc *session.Context) (any, error) {
	var args checkAllergensArgs
	if err := decodeArgs(call, &args); err != nil {
		return nil, err
	}
	if len(args.ItemIDs) == 0 {
		return nil, invalidInput(call, "item_ids is required")
	}

	allergies := sc.Allergies
	if allergies == nil {
		allergies = []string{}
	}
	out := checkAllergensResult{Allergies: allergies, Results: make([]AllergenCheck, 0, len(args.ItemIDs))}
	for _, raw := range args.ItemIDs {
		id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), menu.CitationPrefix))
		check := AllergenCheck{ItemID: id, Conflicts: []string{}}
		if it, ok := sc.Item(id); ok {
			check.Found = true
			check.Name = it.Name
			check.Citation = menu.Citation(it.ID)
			if c := menu.ConflictingAllergens(it, sc.Allergies); len(c) > 0 {
				check.Conflicts = c
			}
			check.Safe = len(check.Conflicts) == 0
		}
		out.Results = append(out.Results, check)
	}
	return out, nil
}

type recommendItemsArgs struct {
	Goals []string `json:"goals"`
	Limit int      `json:"limit"`
}

type recommendItemsResult struct {
	Suggestions []menu.Suggestion `json:"suggestions"`
}

type recommendItemsTool struct{}

func (recommendItemsTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        RecommendItems,
		Description: "Rank add-on items that are safe for this table toward the given goals (dessert, drink, pair, non_alcoholic).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"goals": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "enum": []string{"dessert", "drink", "pair", "non_alcoholic"}},
				},
				"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": menu.MaxRecommendLimit},
			},
		},
	}
}

func (recommendItemsTool) Run(_ context.Context, call Call, sc *session.Context) (any, error) {
	var args recommendItemsArgs
	if err := decodeArgs(call, &args); err != nil {
		return nil, err
	}
	if args.Limit < 0 {
		return nil, invalidInput(call, "limit must be positive, got %d", args.Limit)
	}
	return recommendItemsResult{
		Suggestions: menu.Recommend(sc.Menu, sc.Policy(), menu.ParseGoals(args.Goals), args.Limit),
	}, nil
}
