// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package server

import (
	"context"
	"net/http"

	"github.com/tablewise/aiwaiter/internal/pipeline"
	"github.com/tablewise/aiwaiter/internal/provider"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// WaiterService answers one diner message.
type WaiterService interface {
	Handle(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// ProviderService reports LLM provider availability.
type ProviderService interface {
	Statuses(ctx context.Context) map[string]provider.ProviderStatus
}

// Services holds dependencies injected into route handlers.
type Services struct {
	waiter    WaiterService
	providers ProviderService // optional; nil = health omits providers
	metrics   http.Handler    // optional; nil = no /metrics route
}

// NewServices creates a Services instance. The waiter service is required.
func NewServices(waiter WaiterService, providers ProviderService, metrics http.Handler) (*Services, error) {
	if waiter == nil {
		return nil, apperr.New(apperr.CodeServerConfigInvalid, "waiter service is required")
	}
	return &Services{waiter: waiter, providers: providers, metrics: metrics}, nil
}

// Waiter returns the waiter service.
func (s *Services) Waiter() WaiterService {
	return s.waiter
}

// Providers returns the provider service, or nil.
func (s *Services) Providers() ProviderService {
	return s.providers
}
