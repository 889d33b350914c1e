// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package session

import "strings"

// Disclaimers is an order-preserving set of guest-facing notes. The zero
// value is ready to use. Entries are never removed.
type Disclaimers struct {
	items []string
	seen  map[string]struct{}
}

// Add appends each non-blank message not already present.
func (d *Disclaimers) Add(msgs ...string) {
	for _, m := range msgs {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if d.seen == nil {
			d.seen = make(map[string]struct{})
		}
		if _, ok := d.seen[m]; ok {
			continue
		}
		d.seen[m] = struct{}{}
		d.items = append(d.items, m)
	}
}

// Len returns the number of distinct entries.
func (d *Disclaimers) Len() int { return len(d.items) }

// List returns a copy of the entries in insertion order.
func (d *Disclaimers) List() []string {
	out := make([]string, len(d.items))
	copy(out, d.items)
	return out
}
