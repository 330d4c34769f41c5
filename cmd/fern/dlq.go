package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/redis"
)

func newDLQCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay sync jobs the workers gave up on",
	}
	cmd.AddCommand(newDLQListCmd(c), newDLQReplayCmd(c), newDLQDropCmd(c))
	return cmd
}

// withApp builds the service graph for a one-off command and closes it afterwards.
func withApp(cmd *cobra.Command, c *cli, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, c.config, c.logger)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func newDLQListCmd(c *cli) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest dead-lettered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, c, func(ctx context.Context, a *app.App) error {
				entries, err := a.DLQ.List(ctx, limit)
				if err != nil {
					return err
				}
				return printDLQ(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 20, "maximum number of entries to show")
	return cmd
}

func newDLQReplayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <entry-id>...",
		Short: "Queue dead-lettered jobs again and remove them from the DLQ",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, c, func(ctx context.Context, a *app.App) error {
				for _, id := range args {
					messageID, err := a.DLQ.Replay(ctx, id, a.Streams, c.config.RedisStreamsJobQueue)
					if err != nil {
						return fmt.Errorf("replay %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "replayed %s as %s\n", id, messageID)
				}
				return nil
			})
		},
	}
}

func newDLQDropCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <entry-id>...",
		Short: "Delete dead-lettered jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, c, func(ctx context.Context, a *app.App) error {
				for _, id := range args {
					if err := a.DLQ.Delete(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", id)
				}
				return nil
			})
		},
	}
}

func printDLQ(out io.Writer, entries []redis.DLQEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "dead letter queue is empty")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINTEGRATION\tATTEMPTS\tCREATED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.IntegrationID, e.Attempts, e.CreatedAt.Format(time.RFC3339), e.ErrorMessage)
	}
	return w.Flush()
}
