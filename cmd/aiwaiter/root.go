// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tablewise/aiwaiter/internal/config"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// NewRootCmd creates the root aiwaiter command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aiwaiter",
		Short:         "aiwaiter: guest-facing restaurant agents",
		Long:          "aiwaiter serves the upsell, allergen guardian and waiter agents behind one HTTP endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newSeedCmd(),
		newChatCmd(),
		newStatusCmd(),
		newSecretCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper prepares the global viper so flag > env > file > defaults holds
// for every subcommand.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return apperr.Errorf(apperr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset: with it viper also tries the bare name,
		// which matches an ./aiwaiter binary.
		v.SetConfigName("aiwaiter")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/aiwaiter")
		v.AddConfigPath("/etc/aiwaiter")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return apperr.Errorf(apperr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return apperr.Errorf(apperr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// loadConfig decodes the global viper into a validated Config.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}
