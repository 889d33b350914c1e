// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package secrets stores provider API keys in the OS keyring and resolves
// keyring:// references found in configuration.
package secrets

// DefaultService is the keyring service name used by the CLI.
const DefaultService = "aiwaiter"

// Store provides secret storage. Retrieve and Delete report a missing key with
// apperr.CodeSecretKeyringNotFound.
type Store interface {
	Store(service, key, value string) error
	Retrieve(service, key string) (string, error)
	Delete(service, key string) error
	// List returns the key names stored under service.
	List(service string) ([]string, error)
}
