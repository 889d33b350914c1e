// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package pipeline

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

// UpsellOutput is the upsell agent's structured answer.
type UpsellOutput struct {
	Suggestions []UpsellPick `json:"suggestions"`
}

// UpsellPick is one raw suggestion before canonicalization against the
// menu.
type UpsellPick struct {
	ItemID    string `json:"item_id"`
	Rationale string `json:"rationale"`
}

// GuardianOutput is the allergen guardian's verdict.
type GuardianOutput struct {
	Blocked []BlockedItem `json:"blocked"`
	Safe    []SafeItem    `json:"safe"`
	Notes   []string      `json:"notes"`
}

// BlockedItem is a suggestion the guardian rejected.
type BlockedItem struct {
	ItemID    string   `json:"item_id"`
	Allergens []string `json:"allergens"`
	Reason    string   `json:"reason"`
}

// SafeItem is a suggestion the guardian cleared.
type SafeItem struct {
	ItemID    string `json:"item_id"`
	Rationale string `json:"rationale,omitempty"`
}

// WaiterOutput is the waiter's reply.
type WaiterOutput struct {
	Reply       string       `json:"reply"`
	Citations   []string     `json:"citations"`
	Upsell      []WaiterPick `json:"upsell"`
	Disclaimers []string     `json:"disclaimers"`
}

// WaiterPick references a suggestion the waiter chose to mention.
type WaiterPick struct {
	ItemID string `json:"item_id"`
}

const upsellSchema = `{
  "type": "object",
  "properties": {
    "suggestions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["item_id"],
        "properties": {
          "item_id": { "type": "string", "minLength": 1 },
          "rationale": { "type": "string" }
        }
      }
    }
  }
}`

const guardianSchema = `{
  "type": "object",
  "properties": {
    "blocked": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["item_id"],
        "properties": {
          "item_id": { "type": "string", "minLength": 1 },
          "allergens": { "type": "array", "items": { "type": "string" } },
          "reason": { "type": "string" }
        }
      }
    },
    "safe": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["item_id"],
        "properties": {
          "item_id": { "type": "string" },
          "rationale": { "type": "string" }
        }
      }
    },
    "notes": { "type": "array", "items": { "type": "string" } }
  }
}`

const waiterSchema = `{
  "type": "object",
  "required": ["reply", "citations"],
  "properties": {
    "reply": { "type": "string", "minLength": 1 },
    "citations": { "type": "array", "minItems": 1, "items": { "type": "string" } },
    "upsell": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["item_id"],
        "properties": { "item_id": { "type": "string" } }
      }
    },
    "disclaimers": { "type": "array", "items": { "type": "string" } }
  }
}`

var outputSchemas = struct {
	once    sync.Once
	err     error
	schemas map[types.AgentType]*jsonschema.Schema
}{}

func schemaFor(agent types.AgentType) (*jsonschema.Schema, error) {
	outputSchemas.once.Do(func() {
		sources := map[types.AgentType]string{
			types.AgentUpsell:           upsellSchema,
			types.AgentAllergenGuardian: guardianSchema,
			types.AgentWaiter:           waiterSchema,
		}
		outputSchemas.schemas = make(map[types.AgentType]*jsonschema.Schema, len(sources))
		for agent, src := range sources {
			compiled, err := jsonschema.CompileString(string(agent)+"_output.json", src)
			if err != nil {
				outputSchemas.err = err
				return
			}
			outputSchemas.schemas[agent] = compiled
		}
	})
	if outputSchemas.err != nil {
		return nil, apperr.Wrap(outputSchemas.err, apperr.CodeAgentOutputInvalid, "compiling output schemas")
	}
	return outputSchemas.schemas[agent], nil
}

// ExtractJSON returns the outermost JSON object in text, tolerating code
// fences and prose around it.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeOutput validates text against the agent's schema and decodes it
// into dst. Empty text is agent.output.missing; anything that is not a
// schema-valid object is agent.output.invalid_format.
func decodeOutput(agent types.AgentType, text string, dst any) error {
	if strings.TrimSpace(text) == "" {
		return apperr.New(apperr.CodeAgentOutputMissing, "agent produced no output", apperr.FieldAgentType(agent))
	}
	raw, ok := ExtractJSON(text)
	if !ok {
		return apperr.New(apperr.CodeAgentOutputInvalid, "agent output is not a JSON object", apperr.FieldAgentType(agent))
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return apperr.Wrap(err, apperr.CodeAgentOutputInvalid, "decoding agent output", apperr.FieldAgentType(agent))
	}
	schema, err := schemaFor(agent)
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return apperr.Wrap(err, apperr.CodeAgentOutputInvalid, "agent output failed schema validation", apperr.FieldAgentType(agent))
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return apperr.Wrap(err, apperr.CodeAgentOutputInvalid, "decoding agent output", apperr.FieldAgentType(agent))
	}
	return nil
}

// ParseUpsell decodes upsell output. A missing suggestions field defaults
// to an empty list.
func ParseUpsell(text string) (UpsellOutput, error) {
	var out UpsellOutput
	if err := decodeOutput(types.AgentUpsell, text, &out); err != nil {
		return UpsellOutput{Suggestions: []UpsellPick{}}, err
	}
	if out.Suggestions == nil {
		out.Suggestions = []UpsellPick{}
	}
	return out, nil
}

// ParseGuardian decodes guardian output. Missing blocked, safe and notes
// default to empty lists, as do missing allergens on a blocked entry.
func ParseGuardian(text string) (GuardianOutput, error) {
	var out GuardianOutput
	if err := decodeOutput(types.AgentAllergenGuardian, text, &out); err != nil {
		return GuardianOutput{}, err
	}
	if out.Blocked == nil {
		out.Blocked = []BlockedItem{}
	}
	if out.Safe == nil {
		out.Safe = []SafeItem{}
	}
	if out.Notes == nil {
		out.Notes = []string{}
	}
	for i := range out.Blocked {
		if out.Blocked[i].Allergens == nil {
			out.Blocked[i].Allergens = []string{}
		}
	}
	return out, nil
}

// ParseWaiter decodes the waiter reply. The reply must be non-blank and
// carry at least one citation; missing upsell and disclaimers default to
// empty lists.
func ParseWaiter(text string) (WaiterOutput, error) {
	var out WaiterOutput
	if err := decodeOutput(types.AgentWaiter, text, &out); err != nil {
		return WaiterOutput{}, err
	}
	out.Reply = strings.TrimSpace(out.Reply)
	if out.Reply == "" {
		return WaiterOutput{}, apperr.New(apperr.CodeAgentOutputMissing, "waiter reply is blank")
	}
	if out.Upsell == nil {
		out.Upsell = []WaiterPick{}
	}
	if out.Disclaimers == nil {
		out.Disclaimers = []string{}
	}
	return out, nil
}
