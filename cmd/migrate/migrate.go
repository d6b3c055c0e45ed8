// Package migrate implements the migrate command for the SQL artifact and rule tables.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd/common"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/database"
)

// Command returns the migrate command. Without a subcommand it applies all pending
// migrations.
func Command(flags *common.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				if err := database.RunMigrations(deps.Config.Database, deps.Logger); err != nil {
					return err
				}
				return printVersion(cmd, deps)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				if err := database.MigrateDown(deps.Config.Database, steps, deps.Logger); err != nil {
					return err
				}
				return printVersion(cmd, deps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				return printVersion(cmd, deps)
			})
		},
	}

	cmd.AddCommand(down, version)
	return cmd
}

func printVersion(cmd *cobra.Command, deps *common.CommandDeps) error {
	v, dirty, err := database.MigrationVersion(deps.Config.Database)
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d%s\n", deps.Config.Database.Driver, v, suffix)
	return nil
}
