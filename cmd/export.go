package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/blux"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the index as a BLUX help catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp()
		if err := a.load(ctx); err != nil {
			return err
		}
		entries, err := a.svc.List("")
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			return blux.Export(cmd.OutOrStdout(), entries, time.Now())
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		if err := blux.Export(f, entries, time.Now()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d commands to %s\n", len(entries), exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the catalog to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
