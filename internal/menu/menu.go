// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package menu models the immutable per-request menu snapshot and the
// allergen and alcohol policy checks applied to it.
package menu

import (
	"slices"
	"strings"
)

// CitationPrefix namespaces citation tokens that point at a menu item.
const CitationPrefix = "menu:"

// Item is one row of the active menu.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PriceCents  int64    `json:"price_cents"`
	Currency    string   `json:"currency"`
	Allergens   []string `json:"allergens"`
	Tags        []string `json:"tags"`
	IsAlcohol   bool     `json:"is_alcohol"`
	IsAvailable bool     `json:"is_available"`
}

// HasTag reports whether the item carries tag, ignoring case.
func (i Item) HasTag(tag string) bool {
	return slices.ContainsFunc(i.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// HasAnyTag reports whether the item carries at least one of tags.
func (i Item) HasAnyTag(tags ...string) bool {
	return slices.ContainsFunc(tags, i.HasTag)
}

// CartLine is a validated cart entry.
type CartLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Policy is the guest-level safety policy applied when picking candidates.
type Policy struct {
	Allergies    []string
	AvoidAlcohol bool
	Cart         []CartLine
}

// Suggestion is an upsell candidate as produced by the upsell stage and
// echoed to the client.
type Suggestion struct {
	ItemID       string   `json:"item_id"`
	Name         string   `json:"name"`
	PriceCents   int64    `json:"price_cents"`
	Currency     string   `json:"currency"`
	Rationale    string   `json:"rationale"`
	Allergens    []string `json:"allergens"`
	Tags         []string `json:"tags"`
	IsAlcohol    bool     `json:"is_alcohol"`
	Citations    []string `json:"citations"`
	ImpressionID string   `json:"impression_id,omitempty"`
}

// Citation returns the citation token for a menu item.
func Citation(itemID string) string {
	return CitationPrefix + itemID
}

// Normalize fills defaults on a row read from storage: nil slices become
// empty, negative prices become zero and allergens are lower-cased.
func Normalize(item Item) Item {
	if item.PriceCents < 0 {
		item.PriceCents = 0
	}
	allergens := make([]string, 0, len(item.Allergens))
	for _, a := range item.Allergens {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			allergens = append(allergens, a)
		}
	}
	item.Allergens = allergens
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return item
}

// NormalizeAllergies trims, lower-cases and deduplicates declared allergies,
// keeping first-seen order.
func NormalizeAllergies(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || slices.Contains(out, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ConflictingAllergens returns the item's allergens that overlap any declared
// allergy, compared case-insensitively, in the item's order.
func ConflictingAllergens(item Item, allergies []string) []string {
	var out []string
	for _, a := range item.Allergens {
		if slices.ContainsFunc(allergies, func(declared string) bool {
			return strings.EqualFold(strings.TrimSpace(declared), a)
		}) {
			out = append(out, strings.ToLower(a))
		}
	}
	return out
}

// Eligible reports whether item may be offered to a guest under p: it must
// be available, not already in the cart, allowed by the alcohol policy and
// free of declared allergens.
func Eligible(item Item, p Policy) bool {
	if !item.IsAvailable {
		return false
	}
	if p.AvoidAlcohol && item.IsAlcohol {
		return false
	}
	if slices.ContainsFunc(p.Cart, func(l CartLine) bool { return l.ItemID == item.ID }) {
		return false
	}
	return len(ConflictingAllergens(item, p.Allergies)) == 0
}

// ToSuggestion converts an item to a suggestion carrying exactly one
// citation.
func ToSuggestion(item Item, rationale string) Suggestion {
	if strings.TrimSpace(rationale) == "" {
		rationale = Rationale(item)
	}
	return Suggestion{
		ItemID:     item.ID,
		Name:       item.Name,
		PriceCents: item.PriceCents,
		Currency:   item.Currency,
		Rationale:  rationale,
		Allergens:  slices.Clone(nonNil(item.Allergens)),
		Tags:       slices.Clone(nonNil(item.Tags)),
		IsAlcohol:  item.IsAlcohol,
		Citations:  []string{Citation(item.ID)},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
