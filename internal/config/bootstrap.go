// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

//go:embed aiwaiter.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/aiwaiter/aiwaiter.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperr.Errorf(apperr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "aiwaiter", "aiwaiter.yaml"), nil
}

// BootstrapConfig writes the commented default config to path unless a file
// already exists there. It returns true when a file was written. Failures are
// logged and skipped.
func BootstrapConfig(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return false
	}

	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return false
	}

	slog.Info("created default config", "path", path)
	return true
}
