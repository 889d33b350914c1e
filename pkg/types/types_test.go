// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

func TestParseAgentType(t *testing.T) {
	tests := []struct {
		in      string
		want    types.AgentType
		wantErr bool
	}{
		{in: "upsell", want: types.AgentUpsell},
		{in: " Allergen_Guardian ", want: types.AgentAllergenGuardian},
		{in: "WAITER", want: types.AgentWaiter},
		{in: "sommelier", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseAgentType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.HasCode(err, apperr.CodeConfigValidateInvalidValue))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAutonomyLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    types.AutonomyLevel
		wantErr bool
	}{
		{in: "L0", want: types.AutonomyL0},
		{in: "l2", want: types.AutonomyL2},
		{in: "3", want: types.AutonomyL3},
		{in: "L4", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "high", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseAutonomyLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "L"+tt.in[len(tt.in)-1:], got.String())
		})
	}
}

func TestClampAutonomy(t *testing.T) {
	assert.Equal(t, types.AutonomyL0, types.ClampAutonomy(-3))
	assert.Equal(t, types.AutonomyL1, types.ClampAutonomy(1))
	assert.Equal(t, types.AutonomyL3, types.ClampAutonomy(9))
}

func TestStageAgent(t *testing.T) {
	agent, ok := types.StageGuardian.Agent()
	require.True(t, ok)
	assert.Equal(t, types.AgentAllergenGuardian, agent)

	_, ok = types.StageImpressions.Agent()
	assert.False(t, ok)
	_, ok = types.StageUpsellFailed.Agent()
	assert.False(t, ok)

	assert.True(t, types.StageDone.Terminal())
	assert.False(t, types.StageWaiter.Terminal())
	assert.False(t, types.Stage("dessert").Valid())
}
