package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photo-tagger/internal/startup"
)

func newReconcileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		Long:  "Walks the media directory once, indexes files missing from the index, re-renders missing thumbnails and, with --prune-missing, removes entries whose file is gone.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.bindFlag(cmd, "reconcile.prune_missing", "prune-missing")
			a.bindFlag(cmd, "reconcile.workers", "workers")
			return a.reconcileOnce(cmd)
		},
	}

	cmd.Flags().Bool("prune-missing", false, "remove index entries for deleted files")
	cmd.Flags().Int("workers", 0, "parallel workers (0 = automatic)")

	return cmd
}

func (a *app) reconcileOnce(cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := a.setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	startup.LogIngestInit(rt.config)
	result, err := rt.coord.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
