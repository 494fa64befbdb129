package cmd

import (
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and harvest failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.loadOrEmpty(ctx); err != nil {
			return err
		}

		status := a.svc.Status()
		if statusJSON {
			return writeJSON(cmd.OutOrStdout(), status)
		}
		return printer(cmd).Status(status)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
