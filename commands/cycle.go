package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCycleCmd(cli *CLI) *cobra.Command {
	var times int

	cmd := &cobra.Command{
		Use:   "cycle <name> <row> <col>",
		Short: "Cycle a cell to its next measurement state",
		Long: `Cycle advances one cell through the measurement states:
unmeasured -> success -> failed -> misaligned -> unmeasured.

The change is pushed to the shared store before the command returns.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("row must be an integer: %q", args[1])
			}
			col, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("col must be an integer: %q", args[2])
			}
			if times < 1 {
				return fmt.Errorf("--times must be at least 1")
			}

			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			name := args[0]
			state, err := rt.store.MutateCellAt(name, row, col)
			if err != nil {
				return fmt.Errorf("cycle cell: %w", err)
			}
			for i := 1; i < times; i++ {
				if state, err = rt.store.MutateCellAt(name, row, col); err != nil {
					return fmt.Errorf("cycle cell: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s[%d,%d] -> %s\n", name, row, col, state)
			return nil
		},
	}

	cmd.Flags().IntVar(&times, "times", 1, "Number of cycle steps to apply")
	return cmd
}
