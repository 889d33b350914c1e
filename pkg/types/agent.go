// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package types

import (
	"strings"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// AgentType identifies one LLM-backed role in the waiter pipeline.
type AgentType string

const (
	AgentUpsell           AgentType = "upsell"
	AgentAllergenGuardian AgentType = "allergen_guardian"
	AgentWaiter           AgentType = "waiter"
)

// AgentTypes lists every agent in pipeline order.
var AgentTypes = []AgentType{AgentUpsell, AgentAllergenGuardian, AgentWaiter}

func (a AgentType) String() string { return string(a) }

// Valid reports whether a is a known agent role.
func (a AgentType) Valid() bool {
	switch a {
	case AgentUpsell, AgentAllergenGuardian, AgentWaiter:
		return true
	default:
		return false
	}
}

// ParseAgentType parses a case-insensitive agent name.
func ParseAgentType(s string) (AgentType, error) {
	a := AgentType(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", apperr.Errorf(apperr.CodeConfigValidateInvalidValue, "invalid agent type: %q", s)
	}
	return a, nil
}
