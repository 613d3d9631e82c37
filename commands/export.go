package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/wafermap/export"
)

func newExportCmd(cli *CLI) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write an entry's export document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			g, err := rt.store.Get(args[0])
			if err != nil {
				return fmt.Errorf("load entry: %w", err)
			}
			data, err := export.Marshal(g)
			if err != nil {
				return err
			}

			if outPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %q to %s\n", args[0], outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}
