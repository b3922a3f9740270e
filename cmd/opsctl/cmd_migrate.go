package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"opsdesk/internal/config"
	"opsdesk/internal/infrastructure/storage/postgres"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL schema migrations",
	}

	withMigrator := func(fn func(cmd *cobra.Command, mg *postgres.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(); err != nil {
				return err
			}
			if c.cfg.Storage.Driver != config.DriverPostgres {
				return errors.New("migrations apply to the postgres storage driver only")
			}
			pool, err := postgres.NewPool(cmd.Context(), c.cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			mg, err := postgres.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer mg.Close()
			return fn(cmd, mg)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, mg *postgres.Migrator) error {
			if err := mg.Up(); err != nil {
				return err
			}
			return printVersion(cmd, mg)
		}),
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(func(cmd *cobra.Command, mg *postgres.Migrator) error {
				if err := mg.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})(cmd, args)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(printVersion),
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(cmd *cobra.Command, mg *postgres.Migrator) error {
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d", v)
	if dirty {
		cmd.Print(" (dirty)")
	}
	cmd.Println()
	return nil
}
