package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// MigrationStatus is printed by `migrate version`.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s MigrationStatus) String() string {
	if s.Version == 0 {
		return "no migrations applied"
	}
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd(deps Dependencies) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(cmd *cobra.Command, fn func(Migrator) error) error {
		cc, err := GetCLIContext(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := operationContext(cmd, cc)
		defer cancel()
		mg, release, err := deps.OpenMigrator(ctx, cc.Config, cc.Logger)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "open migrator")
		}
		defer release()
		return fn(mg)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(mg Migrator) error {
				if err := mg.Up(); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.New(errors.ErrCodeValidation, "--steps must be at least 1")
			}
			return withMigrator(cmd, func(mg Migrator) error {
				if err := mg.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(mg Migrator) error {
				return printVersion(cmd, mg)
			})
		},
	}

	forceCmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return errors.Newf(errors.ErrCodeValidation, "invalid version %q", args[0])
			}
			return withMigrator(cmd, func(mg Migrator) error {
				if err := mg.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd, forceCmd)
	return migrateCmd
}

func printVersion(cmd *cobra.Command, mg Migrator) error {
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	return PrintResult(cmd, MigrationStatus{Version: v, Dirty: dirty})
}
