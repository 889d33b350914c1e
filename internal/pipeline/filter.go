// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package pipeline

import (
	"fmt"
	"strings"

	"github.com/tablewise/aiwaiter/internal/menu"
)

// AllRemovedDisclaimer is added when the guardian blocks every suggestion.
const AllRemovedDisclaimer = "All suggested add-ons were removed because they conflict with your allergies."

// Filter returns the suggestions whose item id is not blocked, in order.
// Nothing else is removed.
func Filter(suggestions []menu.Suggestion, blocked []string) []menu.Suggestion {
	set := make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		set[id] = struct{}{}
	}
	out := make([]menu.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if _, ok := set[s.ItemID]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BlockedIDs returns the ids of blocked entries that refer to one of the
// suggestions. Entries naming anything else are ignored.
func BlockedIDs(suggestions []menu.Suggestion, blocked []BlockedItem) []string {
	known := make(map[string]struct{}, len(suggestions))
	for _, s := range suggestions {
		known[s.ItemID] = struct{}{}
	}
	var ids []string
	seen := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		id := strings.TrimPrefix(strings.TrimSpace(b.ItemID), menu.CitationPrefix)
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// BlockedDisclaimer explains one blocked item by name, listing the
// conflicting allergens or falling back to the guardian's reason.
func BlockedDisclaimer(name string, b BlockedItem) string {
	if name == "" {
		name = b.ItemID
	}
	var allergens []string
	for _, a := range b.Allergens {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			allergens = append(allergens, a)
		}
	}
	if len(allergens) > 0 {
		return fmt.Sprintf("%s was removed because it contains %s.", name, strings.Join(allergens, ", "))
	}
	reason := strings.TrimRight(strings.TrimSpace(b.Reason), ".")
	if reason == "" {
		return fmt.Sprintf("%s was removed by our allergen check.", name)
	}
	return fmt.Sprintf("%s was removed: %s.", name, reason)
}
