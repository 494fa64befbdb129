package cmd

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/harvest"
	"github.com/outervoid/god/refresh"
)

var (
	indexAll     bool
	indexDepth   int
	indexWorkers int
	watchFlag    bool
)

var indexCmd = &cobra.Command{
	Use:   "index [names...]",
	Short: "Harvest and index help text",
	Long: `Run each executable with its help flags, parse the output and save it
to the index. Naming executables re-indexes only those and keeps the rest;
--all rebuilds the whole index from every executable on the search path.`,
	Example: `  god index --all
  god index git docker kubectl
  god index --all --depth 2 --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !indexAll {
			return errors.New("name the executables to index or pass --all")
		}
		if len(args) > 0 && indexAll {
			return errors.New("--all cannot be combined with executable names")
		}

		if cmd.Flags().Changed("depth") {
			cfg.Harvest.MaxDepth = indexDepth
		}
		if cmd.Flags().Changed("workers") {
			cfg.Harvest.Workers = indexWorkers
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		a := newApp()
		r := a.refresher()

		summary, err := r.Run(ctx, args, progressLogger())
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		printSummary(cmd, summary)

		if watchFlag {
			return runWatch(ctx, cmd, r)
		}
		return nil
	},
}

func progressLogger() harvest.Progress {
	return func(done, total int, name string, err error) {
		if err != nil {
			appLog.Debug("harvest failed", "progress", fmt.Sprintf("%d/%d", done, total), "command", name, "error", err)
			return
		}
		appLog.Debug("harvested", "progress", fmt.Sprintf("%d/%d", done, total), "command", name)
	}
}

func printSummary(cmd *cobra.Command, s *refresh.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d commands from %d executables in %s\n",
		s.Entries, s.Executables, s.Duration.Round(time.Millisecond))
	if len(s.Removed) > 0 {
		fmt.Fprintf(out, "Removed: %v\n", s.Removed)
	}
	if len(s.Failures) == 0 {
		return
	}
	names := make([]string, 0, len(s.Failures))
	for name := range s.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "No help from %d executables (see `god status`)\n", len(names))
	for _, name := range names {
		appLog.Debug("no help", "command", name, "reason", s.Failures[name])
	}
}

func init() {
	indexCmd.Flags().BoolVarP(&indexAll, "all", "a", false, "index every executable on the search path")
	indexCmd.Flags().IntVar(&indexDepth, "depth", 1, "subcommand recursion depth (0 indexes top-level help only)")
	indexCmd.Flags().IntVar(&indexWorkers, "workers", 8, "executables harvested in parallel")
	indexCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "keep watching the search path after indexing")
	rootCmd.AddCommand(indexCmd)
}
