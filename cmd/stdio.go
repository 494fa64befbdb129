package cmd

import (
	"github.com/spf13/cobra"

	"github.com/outervoid/god/mcp"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve BLUX agents over stdio (MCP JSON-RPC)",
	Long: `Start the tool server on stdin/stdout. Agents call help_search,
help_show and help_list; logs go to stderr so stdout carries only protocol
messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.loadOrEmpty(ctx); err != nil {
			return err
		}

		server := mcp.NewServerIO(a.svc, cmd.InOrStdin(), cmd.OutOrStdout(), appLog)
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}
