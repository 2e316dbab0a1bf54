package commands

import (
	"context"
	"fmt"

	"github.com/opd-ai/onionrelay"
	"github.com/spf13/cobra"
)

func pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Bootstrap the node pool and print the onion paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := onionrelay.New(onionrelay.OptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), requestBudget())
			defer cancel()
			if _, err := client.Paths().GetPath(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pool: %d nodes\n", client.Pool().Len())
			for _, g := range client.Paths().Guards() {
				fmt.Fprintf(out, "guard: %s\n", g.String())
			}
			for _, p := range client.Paths().Paths() {
				fmt.Fprintf(out, "path %s\n", p.ID)
				for i, n := range p.Nodes {
					fmt.Fprintf(out, "  %d. %s\n", i+1, n.String())
				}
			}
			return nil
		},
	}
}
