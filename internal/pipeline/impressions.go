// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package pipeline

import (
	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
)

// ImpressionRows builds one not-yet-accepted impression per suggestion.
func ImpressionRows(sc *session.Context, suggestions []menu.Suggestion) []store.Impression {
	rows := make([]store.Impression, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, store.Impression{
			SessionID:  sc.SessionID,
			TenantID:   sc.TenantID,
			LocationID: sc.LocationID,
			ItemID:     s.ItemID,
			Rationale:  s.Rationale,
		})
	}
	return rows
}

// AttachImpressions copies impression ids onto suggestions. Ids are queued
// per item id and handed out first-in first-out, so duplicate item ids each
// receive a distinct id in insertion order.
func AttachImpressions(suggestions []menu.Suggestion, recorded []store.Impression) []menu.Suggestion {
	queues := make(map[string][]string, len(recorded))
	for _, imp := range recorded {
		queues[imp.ItemID] = append(queues[imp.ItemID], imp.ID)
	}
	out := make([]menu.Suggestion, len(suggestions))
	for i, s := range suggestions {
		if q := queues[s.ItemID]; len(q) > 0 {
			s.ImpressionID = q[0]
			queues[s.ItemID] = q[1:]
		}
		out[i] = s
	}
	return out
}
