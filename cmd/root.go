package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/config"
	"github.com/outervoid/god/logger"
)

var (
	configFile string
	logLevel   string
	noColor    bool

	// set by PersistentPreRunE
	cfg    *config.Config
	appLog *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "god",
		Short: "GOD - global help indexer",
		Long: `god finds every executable on your PATH, collects the help each one
prints, parses it into usage, flags and subcommands, and keeps a local
index you can search from the terminal, over HTTP, or from BLUX agents
through the stdio tool server.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

// Execute runs the root command until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}

	cfg = c
	appLog = logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(appLog)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $HOME/.config/god/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
}
