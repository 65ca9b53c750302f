// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/store"
)

// Migrator is the part of store.Migrator the migrate commands use.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// migratorFactory opens a Migrator. Tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the PostgreSQL schema migrations.`,
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					return m.Down()
				}
				cmd.Println("Rolling back one migration...")
				return m.Steps(-1)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m Migrator) error {
					cmd.Println("Running migrations...")
					return m.Up()
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m Migrator) error {
					st, err := m.Status()
					if err != nil {
						return err
					}
					printStatus(cmd, st)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations (clears dirty state)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, func(m Migrator) error {
					cmd.Printf("Forcing version %d...\n", v)
					return m.Force(v)
				})
			},
		},
	)
	return cmd
}

// withMigrator opens a Migrator for the configured database, runs fn and
// closes it.
func withMigrator(cmd *cobra.Command, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required")
	}

	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := fn(m); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", cmd.Name()).Wrap(err)
	}
	cmd.Println("Done")
	return nil
}

// parseForceVersion parses the VERSION argument of migrate force. golang-migrate
// uses -1 for "no migration applied".
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("version", s).Wrapf(err, "version must be an integer")
	}
	if v < -1 {
		return 0, oops.Code("INVALID_VERSION").With("version", s).Errorf("version must be -1 or greater")
	}
	return v, nil
}

func printStatus(cmd *cobra.Command, st *store.Status) {
	name := st.Name
	if st.Version == 0 {
		name = "(none)"
	}
	cmd.Printf("Current version: %d %s\n", st.Version, name)
	if st.Dirty {
		cmd.Println("State: DIRTY (a migration failed; fix it and run migrate force)")
	}
	cmd.Printf("Applied: %d\n", len(st.Applied))
	cmd.Printf("Pending: %d\n", len(st.Pending))
	for _, v := range st.Pending {
		pending, err := store.MigrationName(v)
		if err != nil || pending == "" {
			pending = strconv.FormatUint(uint64(v), 10)
		}
		cmd.Printf("  %s\n", pending)
	}
}
