package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd(cli *CLI) *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new measurement grid entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			g, err := rt.store.Create(args[0], size)
			if err != nil {
				return fmt.Errorf("create entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%dx%d, %d cells)\n",
				g.Name, g.Size, g.Size, len(g.Cells))
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 8, "Grid edge length (8 or 128)")
	return cmd
}
