package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/types"
)

var (
	topK          int
	searchCommand string
	searchKinds   []string
	jsonOutput    bool
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search indexed help",
	Long: `Rank every indexed command, flag, subcommand and help line against the
query. Prefix the query with "re:" to match raw help lines with a regular
expression instead.`,
	Example: `  god search compress archive
  god search --command git "rewrite history"
  god search --kind flag recursive
  god search 're:--no-[a-z]+-verify'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range searchKinds {
			switch k {
			case types.KindCommand, types.KindFlag, types.KindSubcommand, types.KindLine:
			default:
				return fmt.Errorf("unknown kind %q (want command, flag, subcommand or line)", k)
			}
		}

		ctx := cmd.Context()
		a := newApp()
		if err := a.load(ctx); err != nil {
			return err
		}

		resp, err := a.svc.Search(ctx, &types.SearchRequest{
			Query:   strings.Join(args, " "),
			TopK:    topK,
			Command: searchCommand,
			Kinds:   searchKinds,
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), resp)
		}
		return printer(cmd).SearchResults(resp)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&topK, "top", "k", 0, "number of results to return (default from config)")
	searchCmd.Flags().StringVarP(&searchCommand, "command", "c", "", "restrict to a command and its subcommands")
	searchCmd.Flags().StringSliceVar(&searchKinds, "kind", nil, "restrict hit kinds: command, flag, subcommand, line")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}
