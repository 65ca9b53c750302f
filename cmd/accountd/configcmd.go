// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/xdg"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the config file JSON Schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				schema, err := config.GenerateSchema()
				if err != nil {
					return err
				}
				cmd.Println(string(schema))
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate [FILE]",
			Short: "Validate a config file and the resulting configuration",
			Long: `Validate FILE (default: --config or the XDG config file) against the
config schema, then layer flags and environment over it and check the
result.`,
			Args: cobra.MaximumNArgs(1),
			RunE: runConfigValidate,
		},
		newConfigInitCmd(),
	)
	return cmd
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		path = args[0]
	}

	if path != "" {
		if err := config.ValidateFile(path); err != nil {
			return err
		}
		cmd.Printf("%s: schema ok\n", path)
	}

	cfg, err := config.Load(cmd.Flags(), path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cmd.Println("configuration is valid")
	return nil
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with a fresh session secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				p, err := xdg.ConfigFile()
				if err != nil {
					return oops.Code("CONFIG_INVALID").Wrap(err)
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("config file already exists (use --force to overwrite)")
			}

			secret, err := account.NewRandomTokenGenerator().Generate()
			if err != nil {
				return oops.With("operation", "generate session secret").Wrap(err)
			}
			cfg := config.Default()
			cfg.Session.Secret = secret

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return oops.With("operation", "marshal config").Wrap(err)
			}
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return oops.With("path", path).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
