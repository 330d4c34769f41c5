package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
)

func newSyncCmd(c *cli) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "sync <integration-id>",
		Short: "Run one sync pass for an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid integration id %q: %w", args[0], err)
			}

			return withApp(cmd, c, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				if enqueue {
					integration, err := a.Integrations.GetByID(ctx, id)
					if err != nil {
						return err
					}
					jobID, err := a.Publisher.Enqueue(ctx, integration, models.SyncTriggerCLI)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "queued job %s for integration %s\n", jobID, id)
					return nil
				}

				result, err := a.Orchestrator.SyncByID(ctx, id, models.SyncTriggerCLI)
				if err != nil {
					return err
				}
				printResult(out, result)
				if !result.Success {
					return result.Error
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the pass for the workers instead of running it here")
	return cmd
}

func printResult(out io.Writer, result *orchestrator.SyncResult) {
	fmt.Fprintf(out, "run:        %s\n", result.RunID)
	fmt.Fprintf(out, "success:    %t\n", result.Success)
	if result.Error != nil {
		fmt.Fprintf(out, "error:      %s (%s)\n", result.Error, orchestrator.ErrorKind(result.Error))
	}
	fmt.Fprintf(out, "pages:      %d\n", result.Pages)
	fmt.Fprintf(out, "fetched:    %d\n", result.Fetched)
	fmt.Fprintf(out, "upserted:   %d\n", result.Upserted)
	fmt.Fprintf(out, "failed:     %d\n", result.Failed)
	fmt.Fprintf(out, "reconciled: %d\n", result.Reconciled)
	fmt.Fprintf(out, "duration:   %s\n", result.Duration())
}
