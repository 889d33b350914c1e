// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package tools

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/session"
	"github.com/tablewise/aiwaiter/internal/store"
	"github.com/tablewise/aiwaiter/internal/telemetry"
)

const (
	maxOrderLines    = 20
	maxLineQuantity  = 20
	maxOrderNoteRune = 280
)

type orderLineArgs struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type createOrderArgs struct {
	Items []orderLineArgs `json:"items"`
	Note  string          `json:"note"`
}

// ProposalLine is one priced line of an order proposal.
type ProposalLine struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
	Citation   string `json:"citation"`
}

// Proposal is what create_order returns. It is recorded for staff and never
// charged.
type Proposal struct {
	ProposalID string         `json:"proposal_id"`
	Status     string         `json:"status"`
	Lines      []ProposalLine `json:"lines"`
	TotalCents int64          `json:"total_cents"`
	Currency   string         `json:"currency"`
	Note       string         `json:"note,omitempty"`
	Warnings   []string       `json:"warnings"`
}

type createOrderTool struct {
	recorder ProposalRecorder
}

func (*createOrderTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        CreateOrder,
		Description: "Propose an order for staff to confirm. Nothing is charged.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{
					"type":     "array",
					"minItems": 1,
					"maxItems": maxOrderLines,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"item_id":  map[string]any{"type": "string"},
							"quantity": map[string]any{"type": "integer", "minimum": 1, "maximum": maxLineQuantity},
						},
						"required": []string{"item_id", "quantity"},
					},
				},
				"note": map[string]any{"type": "string", "maxLength": maxOrderNoteRune},
			},
			"required": []string{"items"},
		},
	}
}

func (t *createOrderTool) Run(ctx context.Context, call Call, sc *session.Context) (any, error) {
	var args createOrderArgs
	if err := decodeArgs(call, &args); err != nil {
		return nil, err
	}
	if len(args.Items) == 0 {
		return nil, invalidInput(call, "items is required")
	}
	if len(args.Items) > maxOrderLines {
		return nil, invalidInput(call, "at most %d lines per proposal", maxOrderLines)
	}
	if n := len([]rune(args.Note)); n > maxOrderNoteRune {
		return nil, invalidInput(call, "note exceeds %d characters", maxOrderNoteRune)
	}

	p := Proposal{
		ProposalID: uuid.NewString(),
		Status:     "proposed",
		Currency:   sc.Currency,
		Note:       strings.TrimSpace(args.Note),
		Warnings:   []string{},
	}
	for _, line := range args.Items {
		id := strings.TrimPrefix(strings.TrimSpace(line.ItemID), menu.CitationPrefix)
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return nil, invalidInput(call, "quantity for %q must be between 1 and %d", id, maxLineQuantity)
		}
		it, ok := sc.Item(id)
		if !ok {
			return nil, invalidInput(call, "unknown item %q", id)
		}
		if !it.IsAvailable {
			return nil, invalidInput(call, "item %q is not available", id)
		}
		if it.IsAlcohol && sc.AvoidAlcohol {
			return nil, invalidInput(call, "item %q requires age verification", id)
		}
		if c := menu.ConflictingAllergens(it, sc.Allergies); len(c) > 0 {
			p.Warnings = append(p.Warnings, it.Name+" contains "+strings.Join(c, ", "))
		}
		if p.Currency == "" {
			p.Currency = it.Currency
		}
		p.Lines = append(p.Lines, ProposalLine{
			ItemID:     it.ID,
			Name:       it.Name,
			Quantity:   line.Quantity,
			PriceCents: it.PriceCents,
			Citation:   menu.Citation(it.ID),
		})
		p.TotalCents += it.PriceCents * int64(line.Quantity)
	}

	summary, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if err := t.recorder.Record(ctx, telemetry.Event{
		Kind:           store.EventOrderProposal,
		Agent:          call.Agent,
		SessionID:      sc.SessionID,
		TenantID:       sc.TenantID,
		LocationID:     sc.LocationID,
		TableSessionID: sc.TableSessionID,
		Input:          call.Arguments,
		Output:         string(summary),
		ToolsUsed:      []string{CreateOrder},
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// KitchenLoad summarizes open orders at the table's location.
type KitchenLoad struct {
	OpenOrders     int     `json:"open_orders"`
	P90WaitMinutes float64 `json:"p90_wait_minutes"`
	Level          string  `json:"level"`
}

// Kitchen load levels by p90 wait.
const (
	LoadLow      = "low"
	LoadModerate = "moderate"
	LoadHigh     = "high"
)

type kitchenLoadTool struct {
	orders store.OrderStore
	now    func() time.Time
}

func (*kitchenLoadTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        GetKitchenLoad,
		Description: "Report how busy the kitchen is: open orders and the 90th percentile wait in minutes.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *kitchenLoadTool) Run(ctx context.Context, _ Call, sc *session.Context) (any, error) {
	opened, err := t.orders.OpenOrderTimes(ctx, sc.LocationID)
	if err != nil {
		return nil, err
	}
	return ComputeKitchenLoad(opened, t.now()), nil
}

// ComputeKitchenLoad derives the load from open order timestamps using the
// nearest-rank 90th percentile of minutes waited so far. Orders stamped in
// the future count as zero wait.
func ComputeKitchenLoad(opened []time.Time, now time.Time) KitchenLoad {
	load := KitchenLoad{OpenOrders: len(opened), Level: LoadLow}
	if len(opened) == 0 {
		return load
	}
	waits := make([]float64, len(opened))
	for i, at := range opened {
		waits[i] = max(now.Sub(at).Minutes(), 0)
	}
	sort.Float64s(waits)
	rank := int(math.Ceil(0.9*float64(len(waits)))) - 1
	load.P90WaitMinutes = math.Round(waits[rank]*10) / 10

	switch {
	case load.P90WaitMinutes >= 30:
		load.Level = LoadHigh
	case load.P90WaitMinutes >= 15:
		load.Level = LoadModerate
	}
	return load
}
