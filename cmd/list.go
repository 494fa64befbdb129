package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	listJSON  bool
	listRoots bool
)

var listCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List indexed commands",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.load(ctx); err != nil {
			return err
		}

		if listRoots {
			roots := a.svc.Roots()
			if listJSON {
				return writeJSON(cmd.OutOrStdout(), roots)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(roots, "\n"))
			return err
		}

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		entries, err := a.svc.List(prefix)
		if err != nil {
			return err
		}
		if listJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		return printer(cmd).CommandList(entries)
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest PARTIAL",
	Short: "Suggest indexed commands similar to a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.load(ctx); err != nil {
			return err
		}

		for _, s := range a.svc.Suggest(args[0]) {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output entries as JSON")
	listCmd.Flags().BoolVar(&listRoots, "roots", false, "list executables only")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(suggestCmd)
}
