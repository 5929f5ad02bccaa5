package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/emperorhan/solana-tx-crawler/internal/filter"
	"github.com/emperorhan/solana-tx-crawler/internal/preset"
	"github.com/spf13/cobra"
)

func NewPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in presets and filter kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRESET\tDESCRIPTION")
			for _, p := range preset.All() {
				fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, "tx filter kinds:")
			for _, k := range filter.TxKinds() {
				fmt.Fprintf(out, "  %s\n", k)
			}
			fmt.Fprintln(out, "ix filter kinds:")
			for _, k := range filter.IxKinds() {
				fmt.Fprintf(out, "  %s\n", k)
			}
			return nil
		},
	}
}
