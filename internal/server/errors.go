// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// Error identifiers returned in the "error" field.
const (
	ErrInvalidRequest      = "invalid_request"
	ErrAgentDisabled       = "agent_disabled"
	ErrAgentBudgetExceeded = "agent_budget_exceeded"
	ErrInternal            = "internal_error"
	ErrRateLimited         = "rate_limited"
)

// Fixed guest-facing messages. Internal error text is never returned.
const (
	msgAgentDisabled  = "The assistant is switched off for this restaurant right now. Please ask a member of staff."
	msgBudgetExceeded = "The assistant has reached its usage limit for now. Please try again later or ask a member of staff."
	msgInternal       = "Something went wrong while preparing your answer. Please try again."
	msgInvalid        = "The request is invalid."
)

// APIError is the body of every error response.
type APIError struct {
	status  int
	Code    string   `json:"error" doc:"Error identifier"`
	Message string   `json:"message,omitempty" doc:"Human-readable message"`
	Details []string `json:"details,omitempty" doc:"Validation issues"`
}

func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

var installErrorShapeOnce sync.Once

// installErrorShape routes huma's generated errors through newAPIError.
// huma.NewError is package state, so it is replaced once per process.
func installErrorShape() {
	installErrorShapeOnce.Do(func() {
		huma.NewError = newAPIError
	})
}

// newAPIError maps huma's validation failures (422) and malformed bodies to
// 400 invalid_request with the issue list, and every other status to the
// fixed message for its class.
func newAPIError(status int, msg string, errs ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	switch {
	case status == http.StatusServiceUnavailable:
		return &APIError{status: status, Code: ErrAgentDisabled, Message: msgAgentDisabled}
	case status == http.StatusTooManyRequests:
		return &APIError{status: status, Code: ErrAgentBudgetExceeded, Message: msgBudgetExceeded}
	case status >= http.StatusInternalServerError:
		return &APIError{status: status, Code: ErrInternal, Message: msgInternal}
	}

	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		details = append(details, err.Error())
	}
	if msg == "" {
		msg = msgInvalid
	}
	return &APIError{status: status, Code: ErrInvalidRequest, Message: msg, Details: details}
}

// fromError converts a pipeline error into its API error and logs it.
func (s *Server) fromError(ctx context.Context, err error) error {
	status := apperr.HTTPStatus(err)
	attrs := []any{
		slog.String("code", string(apperr.CodeOf(err))),
		slog.Int("status", status),
		slog.Any("error", err),
	}
	if sid, ok := apperr.FieldsOf(err)["session_id"].(string); ok {
		attrs = append(attrs, slog.String("session_id", sid))
	}

	switch status {
	case http.StatusBadRequest:
		s.log.InfoContext(ctx, "rejected waiter request", attrs...)
		return huma.NewError(status, msgInvalid, err)
	case http.StatusInternalServerError:
		s.log.ErrorContext(ctx, "waiter request failed", attrs...)
	default:
		s.log.WarnContext(ctx, "waiter request refused", attrs...)
	}
	return huma.NewError(status, "")
}
