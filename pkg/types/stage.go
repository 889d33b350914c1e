// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package types

// Stage is a state of the per-request pipeline state machine.
type Stage string

const (
	StageUpsell       Stage = "upsell"
	StageUpsellFailed Stage = "upsell_failed"
	StageGuardian     Stage = "guardian"
	StageImpressions  Stage = "impressions"
	StageWaiter       Stage = "waiter"
	StageDone         Stage = "done"
)

// Valid reports whether the stage is a known pipeline state.
func (s Stage) Valid() bool {
	switch s {
	case StageUpsell, StageUpsellFailed, StageGuardian, StageImpressions, StageWaiter, StageDone:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageDone
}

// Agent returns the agent that runs in s, if any.
func (s Stage) Agent() (AgentType, bool) {
	switch s {
	case StageUpsell:
		return AgentUpsell, true
	case StageGuardian:
		return AgentAllergenGuardian, true
	case StageWaiter:
		return AgentWaiter, true
	default:
		return "", false
	}
}
