package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	showRaw  bool
	showJSON bool
)

var showCmd = &cobra.Command{
	Use:   "show COMMAND...",
	Short: "Show the indexed help of one command",
	Example: `  god show tar
  god show git commit
  god show --raw docker run`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.load(ctx); err != nil {
			return err
		}

		entry, err := a.svc.Show(strings.Join(args, " "))
		if err != nil {
			return err
		}

		switch {
		case showJSON:
			return writeJSON(cmd.OutOrStdout(), entry)
		case showRaw:
			return printer(cmd).Raw(entry)
		default:
			return printer(cmd).Show(entry)
		}
	},
}

func init() {
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "print the help text as harvested")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output the parsed entry as JSON")
	rootCmd.AddCommand(showCmd)
}
