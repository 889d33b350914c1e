// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package redact masks personal data and credentials in free text before it is
// persisted to the audit trail.
package redact

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Rule is a named detection pattern. Matches are replaced by
// "[REDACTED:<name>]".
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRules covers the data diners and operators are most likely to paste
// into a chat: contact details, card numbers and credentials. Credential rules
// come first so an API key embedded in a longer token keeps its own label.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "bearer_token", Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{20,}`)},
		{Name: "api_key", Pattern: regexp.MustCompile(`(?:sk-ant-api\d{2}-[A-Za-z0-9_-]{20,}|sk-proj-[A-Za-z0-9_-]{20,}|sk-[A-Za-z0-9]{32,}|AIza[0-9A-Za-z_-]{35}|AKIA[0-9A-Z]{16}|ghp_[A-Za-z0-9]{36})`)},
		{Name: "email", Pattern: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
		{Name: "card", Pattern: regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)},
		{Name: "phone", Pattern: regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{2,4}\)[ .\-]?)?\d{3,4}[ .\-]\d{3,4}(?:[ .\-]\d{2,4})?`)},
	}
}

// Redactor applies an ordered rule set to text.
type Redactor struct {
	rules []Rule
}

// New returns a Redactor using rules, or DefaultRules when none are given.
func New(rules ...Rule) *Redactor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Redactor{rules: slices.Clone(rules)}
}

type span struct {
	start, end int
	rule       string
}

// Redact normalizes s and masks every rule match. Overlapping matches are
// merged and labelled with the rule of the earliest one.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	content := Normalize(s)

	var spans []span
	for _, rule := range r.rules {
		if rule.Pattern == nil {
			continue
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1], rule: rule.Name})
		}
	}
	if len(spans) == 0 {
		return content
	}

	slices.SortStableFunc(spans, func(a, b span) int { return a.start - b.start })
	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start < last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, sp := range merged {
		b.WriteString(content[pos:sp.start])
		b.WriteString("[REDACTED:")
		b.WriteString(sp.rule)
		b.WriteString("]")
		pos = sp.end
	}
	b.WriteString(content[pos:])
	return b.String()
}

var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200d", "", // zero width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // byte order mark
	"\u00ad", "", // soft hyphen
)

// Normalize strips zero-width characters and applies NFKC so fullwidth or
// otherwise disguised characters match the ASCII patterns.
func Normalize(s string) string {
	return norm.NFKC.String(invisibleCharReplacer.Replace(s))
}

// Truncate bounds s to max runes, appending "..." when it was cut.
// A non-positive max leaves s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
