package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/discovery"
	"github.com/outervoid/god/refresh"
	"github.com/outervoid/god/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index executables as they are installed, changed or removed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.loadOrEmpty(ctx); err != nil {
			return err
		}
		return runWatch(ctx, cmd, a.refresher())
	},
}

// runWatch applies watcher batches until ctx is cancelled
func runWatch(ctx context.Context, cmd *cobra.Command, r *refresh.Refresher) error {
	filter := discovery.NewFilter(cfg.Include, cfg.Exclude)
	w, err := watcher.NewWatcher(watcher.Options{
		DebounceMs: cfg.Watcher.DebounceMs,
		Allow:      filter.Allow,
		Log:        appLog,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if n := w.AddPaths(r.Dirs()); n == 0 {
		return errors.New("none of the search directories can be watched")
	}
	if err := w.InitializeFileHashes(w.WatchedDirs()...); err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %d directories for changes...\n", len(w.WatchedDirs()))

	for {
		events, open := w.GetBatchedEvents(ctx, time.Second)
		if ctx.Err() != nil {
			return nil
		}
		if !open {
			return nil
		}
		if len(events) == 0 {
			continue
		}

		for _, ev := range events {
			appLog.Info("executable changed", "op", ev.Operation.String(), "path", ev.Path)
		}
		summary, err := r.Apply(ctx, events)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			appLog.Error("failed to update index", "error", err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d executables (%d commands), removed %d\n",
			summary.Executables, summary.Entries, len(summary.Removed))
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
