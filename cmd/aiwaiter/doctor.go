// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tablewise/aiwaiter/internal/config"
	"github.com/tablewise/aiwaiter/internal/secrets"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, store, provider keys, a running server and free disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "", "server address to check (default networking.listen)")

	return cmd
}

type doctorCheck struct {
	name string
	fn   func() string
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("networking.listen")
	}

	cfg, cfgErr := loadConfig()

	checks := []doctorCheck{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgErr) }},
	}
	if cfgErr == nil {
		checks = append(checks,
			doctorCheck{"Storage", func() string { return checkStorage(cfg) }},
			doctorCheck{"Providers", func() string { return checkProviders(cfg, secrets.NewResolver(secretStoreFactory())) }},
		)
	}
	checks = append(checks,
		doctorCheck{"Server", func() string { return checkServer(cmd, addr) }},
		doctorCheck{"Disk Space", func() string { return checkDiskSpace(dataDir(cfg)) }},
	)

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-14s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("aiwaiter %s (commit %s)", version, commit)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(err error) string {
	if err != nil {
		return "invalid: " + err.Error()
	}
	if f := viper.ConfigFileUsed(); f != "" {
		return "loaded from " + f
	}
	return "using defaults (no config file found)"
}

func checkStorage(cfg *config.Config) string {
	st, err := openStore(cfg)
	if err != nil {
		return "error: " + err.Error()
	}
	_ = st.Close()
	if cfg.Storage.Backend == "postgres" {
		return "postgres reachable"
	}
	return "sqlite at " + cfg.Storage.Path
}

// checkProviders reports, per configured provider, whether its key resolves.
func checkProviders(cfg *config.Config, r *secrets.Resolver) string {
	if len(cfg.Providers) == 0 {
		return "none configured (run 'aiwaiter init')"
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		key := cfg.Providers[name].APIKey
		switch {
		case key == "":
			parts = append(parts, name+" (no key)")
		case secrets.IsKeyringURI(key):
			if _, err := r.Resolve(key); err != nil {
				parts = append(parts, name+" (keyring entry missing)")
			} else {
				parts = append(parts, name+" (keyring)")
			}
		default:
			parts = append(parts, name+" (inline key)")
		}
	}
	return strings.Join(parts, ", ")
}

func checkServer(cmd *cobra.Command, addr string) string {
	var body healthResponse
	if err := newServerClient(addr).getJSON(cmd.Context(), "/health", &body); err != nil {
		if apperr.HasCode(err, apperr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'aiwaiter start')", addr)
		}
		return "error: " + err.Error()
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

// dataDir is the directory holding the sqlite database, or the config
// directory for other backends.
func dataDir(cfg *config.Config) string {
	if cfg != nil && cfg.Storage.Backend == "sqlite" {
		if abs, err := filepath.Abs(cfg.Storage.Path); err == nil {
			return filepath.Dir(abs)
		}
	}
	if p, err := config.DefaultConfigPath(); err == nil {
		return filepath.Dir(p)
	}
	return "."
}

func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
