// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package types

import (
	"fmt"
	"strconv"
	"strings"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// AutonomyLevel is an ordinal describing how much an agent may do without a
// human approving it. L0 only answers questions; L3 may act on its own.
type AutonomyLevel int

const (
	AutonomyL0 AutonomyLevel = iota
	AutonomyL1
	AutonomyL2
	AutonomyL3
)

func (l AutonomyLevel) String() string {
	return fmt.Sprintf("L%d", int(l))
}

func (l AutonomyLevel) Valid() bool {
	return l >= AutonomyL0 && l <= AutonomyL3
}

// Describe returns the prompt sentence for the level.
func (l AutonomyLevel) Describe() string {
	switch l {
	case AutonomyL0:
		return "Autonomy L0: answer questions only; never propose orders."
	case AutonomyL1:
		return "Autonomy L1: suggest items, but a guest must confirm anything added to an order."
	case AutonomyL2:
		return "Autonomy L2: you may draft order proposals for staff approval."
	default:
		return "Autonomy L3: you may submit order proposals directly."
	}
}

// ParseAutonomyLevel accepts "L2", "l2" or "2". Out-of-range values are
// rejected.
func ParseAutonomyLevel(s string) (AutonomyLevel, error) {
	raw := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "L")
	n, err := strconv.Atoi(raw)
	if err != nil || !AutonomyLevel(n).Valid() {
		return 0, apperr.Errorf(apperr.CodeConfigValidateInvalidValue, "invalid autonomy level: %q", s)
	}
	return AutonomyLevel(n), nil
}

// ClampAutonomy maps any stored ordinal onto L0..L3.
func ClampAutonomy(n int) AutonomyLevel {
	switch {
	case n < int(AutonomyL0):
		return AutonomyL0
	case n > int(AutonomyL3):
		return AutonomyL3
	default:
		return AutonomyLevel(n)
	}
}
