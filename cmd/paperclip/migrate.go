package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kirill555101/paperclip/migrations"
	"github.com/kirill555101/paperclip/pkg/database"
	"github.com/kirill555101/paperclip/pkg/logging"
)

// errNoDatabase is returned when no configured component uses PostgreSQL.
var errNoDatabase = errors.New("no component is configured for postgres (records.store or storage.deferred.queue)")

func (a *app) migrator(cmd *cobra.Command) (*database.Migrator, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	if !a.cfg.NeedsDatabase() {
		return nil, errNoDatabase
	}

	logger := logging.New(&a.cfg.Logging)
	db, err := database.New(&a.cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(cmd.Context(), db); err != nil {
		db.Connection().Close()
		return nil, err
	}

	return database.NewMigrator(db.Connection(), migrations.FS, a.cfg.Database.MigrationsTable, logger)
}

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.migrator(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Up()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, all of them when steps is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid steps %q", args[0])
				}
				steps = n
			}

			m, err := a.migrator(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Down(steps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.migrator(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return cmd
}
