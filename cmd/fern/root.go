package main

import (
	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
)

type cli struct {
	config *config.Config
	logger ectologger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "fern",
		Short:        "Syncs tasks and events from connected providers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg)
			if err != nil {
				return err
			}
			c.config, c.logger = cfg, logger
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(c),
		newSyncCmd(c),
		newMigrateCmd(c),
		newDLQCmd(c),
	)
	return root
}
