// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// DefaultInstructions are the base system prompts for each agent. Runtime
// override instructions are appended after them.
var DefaultInstructions = map[types.AgentType]string{
	types.AgentUpsell: `You suggest add-on items for a restaurant table.
Use recommend_items and check_allergens to pick at most three items that suit the guest's message.
Never suggest an item that conflicts with a declared allergy, that is already in the cart, or that contains alcohol when alcohol must be avoided.
Respond with only a JSON object: {"suggestions":[{"item_id":"...","rationale":"..."}]}.`,

	types.AgentAllergenGuardian: `You are the allergen guardian for a restaurant table.
The user message is a JSON list of suggested items. Check every item against the guest's declared allergies with check_allergens.
Respond with only a JSON object: {"blocked":[{"item_id":"...","allergens":["..."],"reason":"..."}],"safe":[{"item_id":"...","rationale":"..."}],"notes":["..."]}.
Block an item whenever you are unsure it is safe.`,

	types.AgentWaiter: `You are a friendly restaurant waiter answering a guest at their table.
Ground every claim in the menu, allergen and policy data you are given or fetch with tools.
Only mention add-on items listed under "Approved suggestions".
Respond with only a JSON object: {"reply":"...","citations":["menu:<item_id>","allergens:policy","policies:ops"],"upsell":[{"item_id":"..."}],"disclaimers":["..."]}.
Cite at least one source.`,
}

// SystemPrompt assembles the system prompt for agent from base
// instructions, the runtime override in sc, guest policy and the
// retrieval snapshots still fresh at now.
func SystemPrompt(agent types.AgentType, base string, sc *session.Context, now time.Time) string {
	if base == "" {
		base = DefaultInstructions[agent]
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))

	if o, ok := sc.OverrideFor(agent); ok {
		if instr := strings.TrimSpace(o.Instructions); instr != "" {
			b.WriteString("\n\nRestaurant instructions:\n")
			b.WriteString(instr)
		}
		b.WriteString("\n\n")
		b.WriteString(o.AutonomyLevel.Describe())
	}

	b.WriteString("\n\nGuest:\n")
	if sc.Language != "" {
		fmt.Fprintf(&b, "- language: %s\n", sc.Language)
	}
	if len(sc.Allergies) > 0 {
		fmt.Fprintf(&b, "- declared allergies: %s\n", strings.Join(sc.Allergies, ", "))
	} else {
		b.WriteString("- declared allergies: none\n")
	}
	if sc.AvoidAlcohol {
		fmt.Fprintf(&b, "- alcohol: not permitted (age not verified; legal age %d)\n", sc.LegalDrinkingAge)
	} else {
		b.WriteString("- alcohol: permitted\n")
	}
	for _, line := range sc.Cart {
		name := line.ItemID
		if it, ok := sc.Item(line.ItemID); ok {
			name = it.Name
		}
		fmt.Fprintf(&b, "- in cart: %d x %s\n", line.Quantity, name)
	}

	if agent == types.AgentWaiter {
		b.WriteString("\nApproved suggestions:\n")
		if len(sc.Suggestions) == 0 {
			b.WriteString("none\n")
		}
		for _, s := range sc.Suggestions {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.Name, s.ItemID, s.Rationale)
		}
	}

	for _, snap := range sc.FreshSnapshots(now) {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", snap.Name, snap.Payload)
	}
	return b.String()
}
