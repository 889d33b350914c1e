// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package menu

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"
)

// Goal is a guest intent the recommender ranks toward.
type Goal string

const (
	GoalDessert      Goal = "dessert"
	GoalDrink        Goal = "drink"
	GoalPair         Goal = "pair"
	GoalNonAlcoholic Goal = "non_alcoholic"
)

const (
	DefaultRecommendLimit = 3
	MaxRecommendLimit     = 3
	MaxListingLimit       = 40

	rationaleMaxRunes = 180
	genericRationale  = "A guest favourite at this table's restaurant."
)

type family struct {
	goal     Goal
	tags     []string
	offGoal  float64
	goalBump float64
}

var families = []family{
	{goal: GoalDessert, tags: []string{"dessert", "sweet", "pastry"}, offGoal: 3, goalBump: 8},
	{goal: GoalDrink, tags: []string{"drink", "beverage", "cocktail", "wine", "beer", "coffee", "tea"}, offGoal: 3, goalBump: 8},
	{goal: GoalPair, tags: []string{"side", "appetizer", "starter", "sauce", "pairing"}, offGoal: 2, goalBump: 8},
	{goal: GoalNonAlcoholic, tags: []string{"mocktail", "non-alcoholic", "soft-drink", "juice"}, offGoal: 2, goalBump: 8},
}

// ParseGoals keeps recognised goals, de-duplicated, in input order.
func ParseGoals(raw []string) []Goal {
	out := make([]Goal, 0, len(raw))
	for _, r := range raw {
		g := Goal(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(r)), "-", "_"))
		if !slices.ContainsFunc(families, func(f family) bool { return f.goal == g }) {
			continue
		}
		if !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// Score ranks item for goals. The base is the price in major units; tag
// families aligned with a goal add 8, other present families add 2 or 3.
func Score(item Item, goals []Goal) float64 {
	score := float64(item.PriceCents) / 100
	for _, f := range families {
		if !item.HasAnyTag(f.tags...) {
			continue
		}
		if slices.Contains(goals, f.goal) {
			score += f.goalBump
		} else {
			score += f.offGoal
		}
	}
	if item.HasAnyTag("shareable", "small-plate") {
		score += 2
	}
	if item.HasAnyTag("signature", "best-seller") {
		score += 6
	}
	if item.HasAnyTag("vegan", "vegetarian") {
		if slices.Contains(goals, GoalPair) {
			score += 1.5
		} else {
			score += 0.5
		}
	}
	return score
}

// Rank orders items by descending score, ties broken by name then id, and
// returns at most limit of them. limit <= 0 means DefaultRecommendLimit; it
// is then clamped to maxLimit.
func Rank(items []Item, goals []Goal, limit, maxLimit int) []Item {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}

	type scored struct {
		item  Item
		score float64
	}
	ranked := make([]scored, 0, len(items))
	for _, it := range items {
		ranked = append(ranked, scored{item: it, score: Score(it, goals)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].item.Name != ranked[j].item.Name {
			return ranked[i].item.Name < ranked[j].item.Name
		}
		return ranked[i].item.ID < ranked[j].item.ID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Item, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

// Recommend returns up to limit suggestions drawn from the items eligible
// under p.
func Recommend(items []Item, p Policy, goals []Goal, limit int) []Suggestion {
	eligible := make([]Item, 0, len(items))
	for _, it := range items {
		if Eligible(it, p) {
			eligible = append(eligible, it)
		}
	}
	ranked := Rank(eligible, goals, limit, MaxRecommendLimit)
	out := make([]Suggestion, len(ranked))
	for i, it := range ranked {
		out[i] = ToSuggestion(it, "")
	}
	return out
}

// Rationale is the first 180 characters of the description, a sentence
// built from tags, or a generic line.
func Rationale(item Item) string {
	desc := strings.TrimSpace(item.Description)
	if desc != "" {
		if utf8.RuneCountInString(desc) <= rationaleMaxRunes {
			return desc
		}
		return strings.TrimSpace(string([]rune(desc)[:rationaleMaxRunes]))
	}
	if len(item.Tags) > 0 {
		tags := item.Tags
		if len(tags) > 3 {
			tags = tags[:3]
		}
		return fmt.Sprintf("Guests pick this for its %s character.", strings.ToLower(strings.Join(tags, ", ")))
	}
	return genericRationale
}
