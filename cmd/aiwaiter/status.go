// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// healthResponse mirrors GET /health.
type healthResponse struct {
	Status    string `json:"status"`
	Providers []struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
		Message   string `json:"message,omitempty"`
	} `json:"providers"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Query a running server's health endpoint and display provider availability.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "server address (default networking.listen)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("networking.listen")
	}
	out := cmd.OutOrStdout()

	var body healthResponse
	if err := newServerClient(addr).getJSON(cmd.Context(), "/health", &body); err != nil {
		if apperr.HasCode(err, apperr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, body.Status)
	for _, p := range body.Providers {
		state := "available"
		if !p.Available {
			state = "unavailable"
		}
		line := fmt.Sprintf("  %-10s %s", p.Name, state)
		if p.Message != "" {
			line += " (" + p.Message + ")"
		}
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}
