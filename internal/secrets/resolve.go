// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package secrets

import (
	"strings"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// KeyringURI formats a keyring://service/key reference.
func KeyringURI(service, key string) string {
	return keyringScheme + service + "/" + key
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", apperr.Errorf(apperr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", apperr.Errorf(apperr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolver turns configuration values into secrets. Values that are not
// keyring references pass through unchanged.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver reading from store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the secret referenced by value, or value itself when it is
// not a keyring URI.
func (r *Resolver) Resolve(value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := r.store.Retrieve(service, key)
	if err != nil {
		return "", apperr.Wrapf(err, apperr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}
