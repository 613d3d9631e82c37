package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(cli *CLI) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear <name>",
		Short: "Reset every cell of an entry to unmeasured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clearing %q discards all measurements; pass --yes to confirm", args[0])
			}

			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.ClearAll(args[0]); err != nil {
				return fmt.Errorf("clear entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destructive operation")
	return cmd
}
