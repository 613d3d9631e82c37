package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(cli *CLI) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an entry everywhere",
		Long: `Delete removes the entry from the local store and writes a tombstone to
the shared store, so every collaborating process drops it as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("deleting %q removes it for every collaborator; pass --yes to confirm", args[0])
			}

			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.Delete(args[0]); err != nil {
				return fmt.Errorf("delete entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destructive operation")
	return cmd
}
