// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package pipeline

import (
	"strings"

	"github.com/tablewise/aiwaiter/internal/session"
)

// FallbackCitation replaces a citation list with no verifiable entries.
const FallbackCitation = session.CitationOpsPolicy

// CitationFallbackDisclaimer accompanies FallbackCitation.
const CitationFallbackDisclaimer = "Some references could not be verified, so general restaurant policies were cited instead."

// AllowedCitationPrefixes are the citation namespaces the UI can resolve.
var AllowedCitationPrefixes = []string{"menu:", "allergens:", "policies:"}

// SanitizeCitations keeps citations with an allowed prefix, in order and
// without duplicates. When none survive it returns exactly
// [FallbackCitation] and adds CitationFallbackDisclaimer to d.
func SanitizeCitations(citations []string, d *session.Disclaimers) []string {
	out := make([]string, 0, len(citations))
	seen := make(map[string]struct{}, len(citations))
	for _, c := range citations {
		c = strings.TrimSpace(c)
		if !allowedCitation(c) {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		d.Add(CitationFallbackDisclaimer)
		return []string{FallbackCitation}
	}
	return out
}

func allowedCitation(c string) bool {
	for _, p := range AllowedCitationPrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}
