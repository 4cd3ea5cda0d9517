package main

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/purge"
)

func newRootPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "root <uuid>",
		Short: "Delete a project, branch or application and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return runPurge(cmd.Context(), opts, "deleteRoot", logging.Fields{"root": root},
				func(ctx context.Context, c *purge.Commands, _ *env) error {
					return c.DeleteRoot(ctx, root)
				})
		},
	}
}

func newAnalysesCommand(opts *RootOptions) *cobra.Command {
	var soft bool
	cmd := &cobra.Command{
		Use:   "analyses <root>",
		Short: "Delete every analysis of a root",
		Long: `Delete every analysis of a root with its measures, events and properties.

With --soft, analyses that are not the last one are only purged: their
duplication data is removed and they are flagged, but measures are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return runPurge(cmd.Context(), opts, "deleteAnalyses", logging.Fields{"root": root, "soft": soft},
				func(ctx context.Context, c *purge.Commands, _ *env) error {
					if !soft {
						return c.DeleteAnalyses(ctx, root)
					}
					isLast := false
					uuids, err := c.SelectSnapshotUUIDs(ctx, purge.AnalysisQuery{
						RootUUID:  root,
						IsLast:    &isLast,
						NotPurged: true,
					})
					if err != nil {
						return err
					}
					return c.PurgeAnalyses(ctx, uuids)
				})
		},
	}
	cmd.Flags().BoolVar(&soft, "soft", false, "purge instead of delete, keeping measures")
	return cmd
}

func newAbortedAnalysesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aborted-analyses <root>",
		Short: "Delete analyses that never finished processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return runPurge(cmd.Context(), opts, "deleteAbortedAnalyses", logging.Fields{"root": root},
				func(ctx context.Context, c *purge.Commands, _ *env) error {
					return c.DeleteAbortedAnalyses(ctx, root)
				})
		},
	}
}

func newCeActivityCommand(opts *RootOptions) *cobra.Command {
	var (
		root           string
		olderThan      time.Duration
		scannerContext bool
	)
	cmd := &cobra.Command{
		Use:   "ce-activity",
		Short: "Delete finished compute engine tasks",
		Long: `Delete finished compute engine tasks and their bookkeeping.

Without --root the cutoff applies to the whole store. At least one of --root
and --older-than is required; --scanner-context-only always needs --older-than.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			if scannerContext && olderThan == 0 {
				return fmt.Errorf("--scanner-context-only requires --older-than")
			}
			var cutoff time.Time
			if olderThan > 0 {
				cutoff = clock.WallClock.Now().Add(-olderThan)
			}
			fields := logging.Fields{"root": root, "older_than": olderThan.String()}
			return runPurge(cmd.Context(), opts, "deleteCeActivity", fields,
				func(ctx context.Context, c *purge.Commands, _ *env) error {
					switch {
					case scannerContext:
						return c.DeleteCeScannerContextBefore(ctx, root, cutoff)
					case cutoff.IsZero():
						return c.DeleteCeActivity(ctx, root)
					default:
						return c.DeleteCeActivityBefore(ctx, root, cutoff)
					}
				})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "restrict to tasks of this root")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only tasks created longer ago than this (e.g. 720h)")
	cmd.Flags().BoolVar(&scannerContext, "scanner-context-only", false, "delete only scanner context, keeping the tasks")
	return cmd
}

func newCeQueueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ce-queue <root>",
		Short: "Delete queued compute engine tasks of a root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return runPurge(cmd.Context(), opts, "deleteCeQueue", logging.Fields{"root": root},
				func(ctx context.Context, c *purge.Commands, _ *env) error {
					return c.DeleteCeQueue(ctx, root)
				})
		},
	}
}

func newDisabledCommand(opts *RootOptions) *cobra.Command {
	var known []string
	cmd := &cobra.Command{
		Use:   "disabled <root>",
		Short: "Clean up data left on disabled components",
		Long: `Delete file sources and live measures of disabled components and resolve
their open issues. Components found this way that are not listed in --known
are reported to the configured listeners.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return runPurge(cmd.Context(), opts, "purgeDisabledComponents", logging.Fields{"root": root},
				func(ctx context.Context, c *purge.Commands, e *env) error {
					return c.PurgeDisabledComponents(ctx, root, known, e.listener())
				})
		},
	}
	cmd.Flags().StringSliceVar(&known, "known", nil, "components already known to be disabled")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "purgerd version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
		},
	}
}
