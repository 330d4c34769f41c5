package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var version uint

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("version") {
				c.config.DatabaseMigrationVersion = version
			}
			if err := app.Migrate(cmd.Context(), c.config, c.logger); err != nil {
				return err
			}
			c.logger.Info("Migrations applied")
			return nil
		},
	}

	cmd.Flags().UintVar(&version, "version", 0, "migrate to this version instead of the latest")
	return cmd
}
