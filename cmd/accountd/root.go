// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - user accounts and credentials",
		Long: `accountd manages user accounts and their credential lifecycle:
signup with email verification, login with signed session tokens,
and password reset through one-time emailed links.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/accountd/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// configPath returns the --config value, or the default file if it exists.
func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	path, err := xdg.ExistingConfigFile()
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").With("operation", "locate config file").Wrap(err)
	}
	return path, nil
}

// loadConfig layers flags, the config file and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.Flags(), path)
	if err != nil {
		return nil, oops.With("operation", "load config").Wrap(err)
	}
	return cfg, nil
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("accountd " + formatVersion(version, commit, date))
		},
	}
}
