// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tablewise/aiwaiter/internal/config"
	"github.com/tablewise/aiwaiter/internal/secrets"
	"github.com/tablewise/aiwaiter/internal/store"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the waiter API server",
		Long:  "Load configuration, wire the store, providers and agent pipeline, and serve HTTP until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))
	cmd.Flags().Bool("seed-demo", false, "load the demo restaurant before serving")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cmd.ErrOrStderr(), cfg.Logging, viper.GetBool("verbose"))
	slog.SetDefault(log)
	config.WarnInsecurePermissions(viper.ConfigFileUsed())

	if err := cfg.ResolveSecrets(secrets.NewResolver(secretStoreFactory()).Resolve); err != nil {
		log.Warn("some provider keys could not be resolved", "error", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if seedDemo, _ := cmd.Flags().GetBool("seed-demo"); seedDemo {
		fx, err := store.ParseFixture(demoFixture)
		if err != nil {
			return err
		}
		if err := app.Store.Seed(ctx, fx); err != nil {
			return err
		}
		log.Info("demo restaurant seeded", "table_session_id", fx.TableSessions[0].ID)
	}

	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Starting aiwaiter on %s\n", cfg.Networking.Listen); err != nil {
		return err
	}
	return app.Start(ctx)
}
