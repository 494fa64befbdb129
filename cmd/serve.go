package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/api"
)

var (
	port       int
	host       string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long:  `Serve search, lookup, suggestions, status and the BLUX catalog over HTTP.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		a := newApp()
		if err := a.loadOrEmpty(ctx); err != nil {
			return err
		}

		if serveWatch {
			r := a.refresher()
			go func() {
				if err := runWatch(ctx, cmd, r); err != nil {
					appLog.Error("watcher stopped", "error", err)
				}
			}()
		}

		server := api.NewServer(a.svc, cfg.Server.Host, cfg.Server.Port, appLog)
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving %d commands on http://%s\n", a.svc.Status().Commands, server.Addr())
		return server.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 7777, "port to listen on")
	serveCmd.Flags().StringVar(&host, "host", "127.0.0.1", "host to bind to")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "re-index changed executables while serving")

	rootCmd.AddCommand(serveCmd)
}
