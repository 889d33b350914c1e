// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
	"github.com/tablewise/aiwaiter/pkg/types"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := apperr.New(
		apperr.CodeConfigValidateInvalidValue,
		"invalid agent configuration",
		apperr.FieldTenantID("t-123"),
		apperr.FieldAgentType(types.AgentWaiter),
	)

	require.Error(t, err)
	assert.Equal(t, apperr.CodeConfigValidateInvalidValue, apperr.CodeOf(err))
	assert.True(t, apperr.HasCode(err, apperr.CodeConfigValidateInvalidValue))

	fields := apperr.FieldsOf(err)
	assert.Equal(t, "t-123", fields["tenant_id"])
	assert.Equal(t, "waiter", fields["agent_type"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := apperr.Errorf(apperr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, apperr.CodeStoreDatabaseFailure, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := apperr.Wrap(root, apperr.CodeContextEntityNotFound, "loading location",
		apperr.FieldLocationID("loc-1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "loc-1", apperr.FieldsOf(err)["location_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, apperr.Wrap(nil, apperr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, apperr.Wrapf(nil, apperr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, apperr.With(nil, apperr.FieldTool("get_menu")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := apperr.With(stderrors.New("something broke"), apperr.FieldTool("get_menu"))

	require.Error(t, enriched)
	assert.Equal(t, apperr.CodeServerInternalFailure, apperr.CodeOf(enriched))
	assert.Equal(t, "get_menu", apperr.FieldsOf(enriched)["tool"])
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := apperr.New(apperr.CodeAgentSessionBudgetExceeded, "over")
	mid := fmt.Errorf("stage: %w", inner)
	outer := apperr.Wrap(mid, apperr.CodeAgentRunFailure, "waiter run")

	assert.ErrorIs(t, outer, inner)
	assert.Equal(t, apperr.CodeAgentSessionBudgetExceeded, apperr.CodeOf(outer))
	assert.True(t, apperr.IsBudgetExceeded(outer))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := apperr.New(apperr.CodeStoreDatabaseFailure, "oops",
		apperr.Field("", "dropped"),
		apperr.FieldProvider("anthropic"),
	)
	fields := apperr.FieldsOf(err)
	assert.Equal(t, "anthropic", fields["provider"])
	assert.NotContains(t, fields, "")
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid request", err: apperr.New(apperr.CodeServerRequestInvalid, "bad"), status: http.StatusBadRequest},
		{name: "agent disabled", err: apperr.New(apperr.CodeAgentRuntimeDisabled, "off"), status: http.StatusServiceUnavailable},
		{name: "session budget", err: apperr.New(apperr.CodeAgentSessionBudgetExceeded, "over"), status: http.StatusTooManyRequests},
		{name: "daily budget", err: apperr.New(apperr.CodeAgentDailyBudgetExceeded, "over"), status: http.StatusTooManyRequests},
		{name: "missing context row", err: apperr.New(apperr.CodeContextEntityNotFound, "gone"), status: http.StatusInternalServerError},
		{name: "no active menu", err: apperr.New(apperr.CodeContextNoActiveMenu, "none"), status: http.StatusInternalServerError},
		{name: "tool disabled", err: apperr.New(apperr.CodeAgentToolDisabled, "nope"), status: http.StatusInternalServerError},
		{name: "output missing", err: apperr.New(apperr.CodeAgentOutputMissing, "empty"), status: http.StatusInternalServerError},
		{name: "plain", err: stderrors.New("plain"), status: http.StatusInternalServerError},
		{name: "nil", err: nil, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, apperr.HTTPStatus(tt.err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain"), apperr.New(apperr.CodeStoreDatabaseFailure, "db")} {
		assert.False(t, apperr.IsNotFound(err))
		assert.False(t, apperr.IsInvalidInput(err))
		assert.False(t, apperr.IsDisabled(err))
		assert.False(t, apperr.IsBudgetExceeded(err))
		assert.False(t, apperr.IsUpstreamFailure(err))
	}
}

func TestClassificationPositiveCases(t *testing.T) {
	assert.True(t, apperr.IsInvalidInput(apperr.New(apperr.CodeAgentToolInvalidInput, "x")))
	assert.True(t, apperr.IsInvalidInput(apperr.New(apperr.CodeServerRequestInvalid, "x")))
	assert.True(t, apperr.IsUpstreamFailure(apperr.New(apperr.CodeProviderUpstreamFailure, "x")))
	assert.True(t, apperr.IsDisabled(apperr.New(apperr.CodeAgentRuntimeDisabled, "x")))
	assert.False(t, apperr.IsDisabled(apperr.New(apperr.CodeAgentToolDisabled, "x")))
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := apperr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, apperr.CodeServerInternalFailure, apperr.CodeOf(joined))
}
