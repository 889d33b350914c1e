// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/pipeline"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// chatRequest mirrors the POST /agents/waiter body.
type chatRequest struct {
	Message        string         `json:"message"`
	TableSessionID string         `json:"table_session_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	LocationID     string         `json:"location_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Language       string         `json:"language,omitempty"`
	Allergies      []string       `json:"allergies,omitempty"`
	Cart           []chatCartLine `json:"cart,omitempty"`
	AgeVerified    bool           `json:"age_verified,omitempty"`
}

type chatCartLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the waiter through a running server",
		Long: `Send one diner message to POST /agents/waiter on a running server and
render the reply, upsell suggestions, disclaimers and citations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().String("address", "", "server address (default networking.listen)")
	cmd.Flags().StringP("table-session", "t", "", "open table session id")
	cmd.Flags().StringP("location", "l", "", "location id")
	cmd.Flags().String("tenant", "", "tenant id")
	cmd.Flags().String("user", "", "signed-in guest id")
	cmd.Flags().StringP("session", "s", "", "continue an existing agent session")
	cmd.Flags().String("language", "", "preferred reply language")
	cmd.Flags().StringSliceP("allergy", "a", nil, "declared allergen (repeatable)")
	cmd.Flags().StringSlice("cart", nil, "item already ordered as item_id[:quantity] (repeatable)")
	cmd.Flags().Bool("age-verified", false, "guest is verified to be of legal drinking age")
	cmd.Flags().Bool("json", false, "print the raw JSON response")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("address")
	if addr == "" {
		addr = viper.GetString("networking.listen")
	}

	req := chatRequest{Message: strings.Join(args, " ")}
	req.TableSessionID, _ = flags.GetString("table-session")
	req.LocationID, _ = flags.GetString("location")
	req.TenantID, _ = flags.GetString("tenant")
	req.UserID, _ = flags.GetString("user")
	req.SessionID, _ = flags.GetString("session")
	req.Language, _ = flags.GetString("language")
	req.Allergies, _ = flags.GetStringSlice("allergy")
	req.AgeVerified, _ = flags.GetBool("age-verified")

	if req.TableSessionID == "" && req.LocationID == "" {
		return apperr.New(apperr.CodeCLIInputInvalid, "either --table-session or --location is required")
	}

	rawCart, _ := flags.GetStringSlice("cart")
	cart, err := parseCart(rawCart)
	if err != nil {
		return err
	}
	req.Cart = cart

	var resp pipeline.Response
	if err := newServerClient(addr).postJSON(cmd.Context(), "/agents/waiter", req, &resp); err != nil {
		if apiErr, ok := serverAPIError(err); ok {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(apiErr.Error()))
		}
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	_, err = fmt.Fprintln(out, renderResponse(&resp))
	return err
}

// parseCart parses item_id[:quantity] entries. Quantity defaults to 1.
func parseCart(entries []string) ([]chatCartLine, error) {
	lines := make([]chatCartLine, 0, len(entries))
	for _, e := range entries {
		id, qtyStr, hasQty := strings.Cut(strings.TrimSpace(e), ":")
		if id == "" {
			return nil, apperr.Errorf(apperr.CodeCLIInputInvalid, "cart entry %q: item id is required", e)
		}
		qty := 1
		if hasQty {
			n, err := strconv.Atoi(qtyStr)
			if err != nil || n < 1 {
				return nil, apperr.Errorf(apperr.CodeCLIInputInvalid, "cart entry %q: quantity must be a positive integer", e)
			}
			qty = n
		}
		lines = append(lines, chatCartLine{ItemID: id, Quantity: qty})
	}
	return lines, nil
}

// renderResponse formats a waiter response for the terminal.
func renderResponse(resp *pipeline.Response) string {
	var b strings.Builder

	b.WriteString(boxStyle.Render(resp.Reply))
	b.WriteString("\n")

	if len(resp.Upsell) > 0 {
		b.WriteString("\n" + titleStyle.Render("You might also like") + "\n")
		for _, s := range resp.Upsell {
			b.WriteString(itemStyle.Render("  • "+s.Name) + "  " + formatPrice(s) + "\n")
			if s.Rationale != "" {
				b.WriteString(dimStyle.Render("    "+s.Rationale) + "\n")
			}
		}
	}

	if len(resp.Disclaimers) > 0 {
		b.WriteString("\n")
		for _, d := range resp.Disclaimers {
			b.WriteString(warnStyle.Render("! "+d) + "\n")
		}
	}

	if len(resp.Citations) > 0 {
		b.WriteString("\n" + dimStyle.Render("Sources: "+strings.Join(resp.Citations, ", ")) + "\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("session %s · cost $%.6f", resp.SessionID, resp.CostUSD)))
	return b.String()
}

var pricePrinter = message.NewPrinter(language.English)

// formatPrice renders minor units in the item's ISO currency.
func formatPrice(s menu.Suggestion) string {
	unit, err := currency.ParseISO(s.Currency)
	if err != nil {
		return fmt.Sprintf("%d.%02d %s", s.PriceCents/100, s.PriceCents%100, s.Currency)
	}
	return pricePrinter.Sprint(currency.ISO(unit.Amount(float64(s.PriceCents) / 100)))
}
