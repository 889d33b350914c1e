// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreEntityNotFound     Code = "store.entity.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.write.already_exists"

	CodeSecretInvalidInput    Code = "secret.input.invalid"
	CodeSecretResolveFailure  Code = "secret.resolve.failure"
	CodeSecretKeyringNotFound Code = "secret.keyring.not_found"
	CodeSecretKeyringFailure  Code = "secret.keyring.failure"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderNotFound        Code = "provider.registry.not_found"
	CodeProviderAllUnavailable  Code = "provider.routing.all_unavailable"
	CodeProviderNoDefault       Code = "provider.routing.no_default"
	CodeProviderInvalidModelRef Code = "provider.routing.invalid_model_ref"
	CodeProviderKeyInvalid      Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed  Code = "provider.key.check.failure"

	// Context assembly. Both indicate misconfiguration rather than user error
	// and surface as internal failures.
	CodeContextEntityNotFound Code = "context.entity.not_found"
	CodeContextNoActiveMenu   Code = "context.menu.no_active"

	CodeAgentRuntimeDisabled       Code = "agent.runtime.disabled"
	CodeAgentSessionBudgetExceeded Code = "agent.budget.session.exceeded"
	CodeAgentDailyBudgetExceeded   Code = "agent.budget.daily.exceeded"
	CodeAgentToolDisabled          Code = "agent.tool.disabled"
	CodeAgentToolInvalidInput      Code = "agent.tool.invalid_input"
	CodeAgentToolFailure           Code = "agent.tool.failure"
	CodeAgentToolTimeout           Code = "agent.tool.timeout"
	CodeAgentToolLoopExhausted     Code = "agent.tool.loop_exhausted"
	CodeAgentOutputMissing         Code = "agent.output.missing"
	CodeAgentOutputInvalid         Code = "agent.output.invalid_format"
	CodeAgentRunFailure            Code = "agent.run.failure"

	CodePipelineImpressionFailure Code = "pipeline.impression.failure"
	CodePipelineSessionFailure    Code = "pipeline.session.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
	CodeCLIServerNotRunning Code = "cli.server.not_running"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldTenantID(value string) Attr {
	return Field("tenant_id", value)
}

func FieldLocationID(value string) Attr {
	return Field("location_id", value)
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldAgentType(value fmt.Stringer) Attr {
	return Field("agent_type", value.String())
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

// CodeOf returns the code of the deepest coded error in err's chain, or ""
// when err carries none. Wrapping never masks an inner code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	if oopsErr.Code() == nil {
		return ""
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

// IsDisabled reports whether err signals an agent kill switch.
func IsDisabled(err error) bool {
	return reason(CodeOf(err)) == "disabled" && strings.HasPrefix(string(CodeOf(err)), "agent.runtime.")
}

func IsBudgetExceeded(err error) bool {
	code := CodeOf(err)
	return reason(code) == "exceeded" && strings.Contains(string(code), ".budget.")
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// HTTPStatus maps an error to the status the waiter API responds with.
// Missing context rows and absent menus are configuration problems, so they
// stay 500 rather than 404.
func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerRequestInvalid):
		return http.StatusBadRequest
	case IsDisabled(err):
		return http.StatusServiceUnavailable
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
