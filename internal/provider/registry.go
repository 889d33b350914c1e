// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package provider

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// Registry holds the configured providers and routes "provider/model"
// references with per-tenant overrides and an ordered failover chain.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string            // "provider/model"
	overrides  map[string]string // tenantID -> "provider/model"
	failover   []string
}

var _ Router = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		overrides: make(map[string]string),
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// RegisterProvider implements Router.
func (r *Registry) RegisterProvider(name string, p Provider) error {
	if name == "" || p == nil {
		return apperr.New(apperr.CodeProviderRequestInvalid, "provider name and implementation are required")
	}
	r.Register(name, p)
	return nil
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, apperr.New(apperr.CodeProviderNotFound, "provider not found: "+name, apperr.FieldProvider(name))
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the reference used when neither the caller nor a tenant
// override names a model.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetOverride routes every default-model request of tenantID to ref.
func (r *Registry) SetOverride(tenantID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.overrides[tenantID] = ref
	return nil
}

// SetFailover sets the ordered references tried when the primary is
// unavailable.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

// MaxAttempts is the primary plus the failover chain.
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route implements Router.
func (r *Registry) Route(ctx context.Context, tenantID, modelRef string) (Provider, string, error) {
	return r.RouteExcluding(ctx, tenantID, modelRef, nil)
}

// RouteExcluding is Route skipping the named providers, which lets a caller
// fail over after a provider errored mid-stream.
func (r *Registry) RouteExcluding(ctx context.Context, tenantID, modelRef string, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.resolveRefLocked(tenantID, modelRef)
	if err != nil {
		return nil, "", err
	}
	if ref == "" {
		return nil, "", apperr.New(apperr.CodeProviderNoDefault, "no default model configured")
	}

	for _, candidate := range append([]string{ref}, r.failover...) {
		name, _ := ParseRef(candidate)
		if slices.Contains(exclude, name) {
			continue
		}
		if p, model, err := r.tryRefLocked(ctx, candidate); err == nil {
			return p, model, nil
		}
	}

	return nil, "", apperr.New(apperr.CodeProviderAllUnavailable, "all providers unavailable")
}

// Statuses reports every provider's status keyed by name.
func (r *Registry) Statuses(ctx context.Context) map[string]ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ProviderStatus, len(r.providers))
	for name, p := range r.providers {
		st, err := p.Status(ctx)
		if err != nil {
			st = ProviderStatus{Provider: name, Message: err.Error()}
		}
		out[name] = st
	}
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperr.Wrap(errors.Join(errs...), apperr.CodeProviderUpstreamFailure, "closing providers")
	}
	return nil
}

func (r *Registry) checkRefLocked(ref string) error {
	name, model := ParseRef(ref)
	if model == "" {
		return apperr.Errorf(apperr.CodeProviderInvalidModelRef, "model reference %q must use provider/model format", ref)
	}
	if _, ok := r.providers[name]; !ok {
		return apperr.New(apperr.CodeProviderNotFound, "provider not registered: "+name, apperr.FieldProvider(name))
	}
	return nil
}

func (r *Registry) resolveRefLocked(tenantID, modelRef string) (string, error) {
	if modelRef != "" && modelRef != "default" {
		if !strings.Contains(modelRef, "/") {
			return "", apperr.Errorf(apperr.CodeProviderInvalidModelRef,
				"model %q must use provider/model format", modelRef)
		}
		return modelRef, nil
	}
	if tenantID != "" {
		if override, ok := r.overrides[tenantID]; ok {
			return override, nil
		}
	}
	return r.defaultRef, nil
}

func (r *Registry) tryRefLocked(ctx context.Context, ref string) (Provider, string, error) {
	name, model := ParseRef(ref)

	p, ok := r.providers[name]
	if !ok {
		return nil, "", apperr.New(apperr.CodeProviderNotFound, "provider not found: "+name, apperr.FieldProvider(name))
	}
	if !p.Available(ctx) {
		return nil, "", apperr.New(apperr.CodeProviderUpstreamFailure, "provider unavailable: "+name, apperr.FieldProvider(name))
	}
	return p, model, nil
}

// ParseRef splits a "provider/model" reference on the first "/".
func ParseRef(ref string) (providerName, model string) {
	name, model, ok := strings.Cut(ref, "/")
	if !ok {
		return ref, ""
	}
	return name, model
}
