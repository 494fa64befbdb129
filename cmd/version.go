package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/api"
	"github.com/outervoid/god/mcp"
)

// Version is set at build time with -ldflags "-X github.com/outervoid/god/cmd.Version=..."
var Version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "god %s\n", Version)
		return err
	},
}

func init() {
	api.Version = Version
	mcp.Version = Version
	rootCmd.Version = Version
	rootCmd.AddCommand(versionCmd)
}
