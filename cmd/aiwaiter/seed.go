// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	_ "embed"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tablewise/aiwaiter/internal/store"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

//go:embed demo.yaml
var demoFixture []byte

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [fixture.yaml]",
		Short: "Load locations, menus and runtime configs into the store",
		Long: `Load a fixture file into the configured store. Without an argument the
built-in demo restaurant is loaded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSeed,
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var fx *store.Fixture
	if len(args) == 1 {
		fx, err = store.LoadFixture(args[0])
	} else {
		fx, err = store.ParseFixture(demoFixture)
	}
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return apperr.Wrapf(err, apperr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}
	defer func() { _ = st.Close() }()

	if err := st.Seed(cmd.Context(), fx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	items := 0
	for _, m := range fx.Menus {
		items += len(m.Items)
	}
	_, _ = fmt.Fprintf(out, "Seeded %d location(s), %d table session(s), %d menu(s) with %d item(s), %d runtime config(s), %d order(s)\n",
		len(fx.Locations), len(fx.TableSessions), len(fx.Menus), items, len(fx.RuntimeConfigs), len(fx.Orders))
	if len(args) == 0 && len(fx.TableSessions) > 0 {
		_, _ = fmt.Fprintf(out, "Try: aiwaiter chat --table-session %s \"What goes well with a burger?\"\n", fx.TableSessions[0].ID)
	}
	return nil
}
