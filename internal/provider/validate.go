// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// ProviderName identifies a supported LLM backend.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
	ProviderGoogle    ProviderName = "google"
)

// Valid reports whether n is a supported provider.
func (n ProviderName) Valid() bool {
	switch n {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
		return true
	default:
		return false
	}
}

func modelsURL(name ProviderName, key string) string {
	switch name {
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1/models"
	case ProviderOpenAI:
		return "https://api.openai.com/v1/models"
	case ProviderGoogle:
		// The Gemini API only accepts the key as a query parameter here.
		return "https://generativelanguage.googleapis.com/v1/models?key=" + key
	default:
		return ""
	}
}

// ValidateKey lists the provider's models with key to confirm it is accepted.
func ValidateKey(ctx context.Context, client *http.Client, name ProviderName, key string) error {
	return ValidateKeyAt(ctx, client, name, key, modelsURL(name, key))
}

// ValidateKeyAt is ValidateKey against an explicit models URL.
func ValidateKeyAt(ctx context.Context, client *http.Client, name ProviderName, key, url string) error {
	if !name.Valid() {
		return apperr.Errorf(apperr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrapf(err, apperr.CodeProviderKeyCheckFailed, "building %s validation request", name)
	}
	switch name {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderOpenAI:
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperr.Wrapf(err, apperr.CodeProviderKeyCheckFailed, "validating %s key", name)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Errorf(apperr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return apperr.Errorf(apperr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
